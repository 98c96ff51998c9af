package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/tempobot/tempo/internal/config"
	"github.com/tempobot/tempo/internal/consts"
)

var onboardHwd = &OnboardRunner{}

type OnboardRunner struct {
	scanner *bufio.Scanner
}

func (r *OnboardRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "onboard",
		Usage: "Interactive setup wizard for first-time configuration",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "accept-risk",
				Usage: "Skip the disclaimer prompt",
			},
		},
		Action: r.run,
	}
}

// ── style helpers ──────────────────────────────────────────────────

var (
	cBanner  = color.New(color.FgCyan, color.Bold)
	cStep    = color.New(color.FgCyan, color.Bold)
	cWarn    = color.New(color.FgYellow)
	cSuccess = color.New(color.FgGreen)
	cError   = color.New(color.FgRed)
	cPrompt  = color.New(color.FgWhite, color.Bold)
	cDim     = color.New(color.FgHiBlack)
)

// ── main flow ──────────────────────────────────────────────────────

func (r *OnboardRunner) run(ctx context.Context, cmd *cli.Command) error {
	r.scanner = bufio.NewScanner(os.Stdin)

	cfgPath := consts.DefaultConfigPath()
	if _, err := os.Stat(cfgPath); err == nil {
		cWarn.Printf("  Config already exists at %s\n", cfgPath)
		if !r.confirm("  Overwrite existing config?", false) {
			fmt.Println("  Aborted.")
			return nil
		}
		fmt.Println()
	}

	if !cmd.Bool("accept-risk") {
		if !r.stepWelcome() {
			return nil
		}
	}

	discord := r.stepDiscord()
	runner := r.stepRunner()
	sync := r.stepSync()
	ops := r.stepOps()

	return r.stepConfirm(cfgPath, discord, runner, sync, ops)
}

// ── step 1: welcome ────────────────────────────────────────────────

func (r *OnboardRunner) stepWelcome() bool {
	fmt.Println()
	cBanner.Println("  ████████╗███████╗███╗   ███╗██████╗  ██████╗ ")
	cBanner.Println("  ╚══██╔══╝██╔════╝████╗ ████║██╔══██╗██╔═══██╗")
	cBanner.Println("     ██║   █████╗  ██╔████╔██║██████╔╝██║   ██║")
	cBanner.Println("     ██║   ██╔══╝  ██║╚██╔╝██║██╔═══╝ ██║   ██║")
	cBanner.Println("     ██║   ███████╗██║ ╚═╝ ██║██║     ╚██████╔╝")
	cBanner.Println("     ╚═╝   ╚══════╝╚═╝     ╚═╝╚═╝      ╚═════╝ ")
	cDim.Println("  Forum-driven cron jobs for your AI assistant")
	fmt.Println()

	cWarn.Println("  ⚠  DISCLAIMER")
	fmt.Println()
	cWarn.Println("  Tempo runs scheduled jobs through an AI completion service and")
	cWarn.Println("  posts the results to your Discord server. By continuing, you")
	cWarn.Println("  acknowledge the following:")
	fmt.Println()
	cWarn.Println("  • Jobs run unattended and may invoke tools on your behalf.")
	cWarn.Println("    Review the prompts you schedule.")
	cWarn.Println("  • Your Discord bot token is stored locally in")
	cWarn.Printf("    %s. Keep this file secure.\n", consts.DefaultConfigPath())
	cWarn.Println("  • This software is provided \"as-is\" without warranty.")
	cWarn.Println("    Use at your own risk.")
	fmt.Println()

	if !r.confirm("  Do you accept these terms?", false) {
		fmt.Println()
		fmt.Println("  Aborted. You must accept the terms to continue.")
		return false
	}
	fmt.Println()
	return true
}

// ── step 2: discord ────────────────────────────────────────────────

func (r *OnboardRunner) stepDiscord() config.DiscordConfig {
	r.printStepHeader("Step 2", "Discord")

	cDim.Println("  You need a bot token with the Guilds, Guild Messages, and")
	cDim.Println("  Message Content intents, plus the ids of your server and the")
	cDim.Println("  forum channel whose threads will define jobs.")
	fmt.Println()

	cfg := config.DiscordConfig{
		Token:             r.promptRequired("  Bot token"),
		GuildID:           r.promptRequired("  Guild (server) id"),
		ForumChannelID:    r.promptRequired("  Forum channel id"),
		OperatorChannelID: r.promptDefault("  Operator channel id (for error notifications, optional)", ""),
	}
	if users := r.promptDefault("  Allowed user ids (comma-separated, empty allows everyone)", ""); users != "" {
		cfg.AllowedUserIDs = splitTrim(users)
	}
	fmt.Println()

	cSuccess.Printf("  ✓ Discord: guild %s, forum %s\n\n", cfg.GuildID, cfg.ForumChannelID)
	return cfg
}

// ── step 3: runner ─────────────────────────────────────────────────

func (r *OnboardRunner) stepRunner() config.RunnerConfig {
	r.printStepHeader("Step 3", "Completion service")

	cfg := config.RunnerConfig{
		Command: r.promptDefault("  CLI command", "claude"),
		Model:   r.promptDefault("  Default model", ""),
	}
	if models := r.promptDefault("  Models for auto-classification (comma-separated, optional)", ""); models != "" {
		cfg.Models = splitTrim(models)
	}
	fmt.Println()

	cSuccess.Printf("  ✓ Runner: %s\n\n", cfg.Command)
	return cfg
}

// ── step 4: sync ───────────────────────────────────────────────────

func (r *OnboardRunner) stepSync() config.SyncConfig {
	r.printStepHeader("Step 4", "Thread sync")

	cDim.Println("  Purpose tags are a closed label set jobs get classified into")
	cDim.Println("  (e.g. reporting, alerting, housekeeping). Matching forum tags")
	cDim.Println("  are applied to each job's thread.")
	fmt.Println()

	cfg := config.SyncConfig{}
	if tags := r.promptDefault("  Purpose tags (comma-separated, optional)", ""); tags != "" {
		cfg.PurposeTags = splitTrim(tags)
	}
	fmt.Println()

	cSuccess.Println("  ✓ Sync configured")
	fmt.Println()
	return cfg
}

// ── step 5: ops ────────────────────────────────────────────────────

func (r *OnboardRunner) stepOps() config.OpsConfig {
	r.printStepHeader("Step 5", "Ops endpoints")

	cDim.Println("  The ops server exposes /health, /jobs, and /metrics on")
	cDim.Println("  loopback for process supervisors and Prometheus scrapes.")
	fmt.Println()

	cfg := config.OpsConfig{Enabled: r.confirm("  Enable ops endpoints?", true)}
	if cfg.Enabled {
		cfg.Bind = r.promptDefault("  Bind address", "127.0.0.1:8091")
	}
	fmt.Println()

	if cfg.Enabled {
		cSuccess.Printf("  ✓ Ops: %s\n\n", cfg.Bind)
	} else {
		cSuccess.Println("  ✓ Ops: disabled")
		fmt.Println()
	}
	return cfg
}

// ── step 6: confirm & write ────────────────────────────────────────

func (r *OnboardRunner) stepConfirm(cfgPath string, discord config.DiscordConfig,
	runner config.RunnerConfig, sync config.SyncConfig, ops config.OpsConfig) error {
	r.printStepHeader("Step 6", "Review")

	cDim.Printf("  Home directory:  %s\n", consts.TempoHomeDir())
	cDim.Printf("  Config file:     %s\n", cfgPath)
	cDim.Printf("  Workspace:       %s\n", consts.DefaultWorkspaceDir())
	fmt.Println()
	cDim.Printf("  Guild:           %s\n", discord.GuildID)
	cDim.Printf("  Forum channel:   %s\n", discord.ForumChannelID)
	cDim.Printf("  Runner command:  %s\n", runner.Command)
	cDim.Printf("  Ops enabled:     %v\n", ops.Enabled)
	fmt.Println()

	if !r.confirm("  Write config and initialize workspace?", true) {
		fmt.Println("  Aborted.")
		return nil
	}
	fmt.Println()

	cfg := &config.Config{
		Discord: discord,
		Runner:  runner,
		Sync:    sync,
		Ops:     ops,
		Logging: config.LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "both",
			File:       filepath.Join(consts.TempoHomeDir(), "logs", "tempo.log"),
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     3,
		},
	}
	if err := cfg.Validate(); err != nil {
		cError.Printf("  ✗ Invalid config: %v\n", err)
		return err
	}

	if err := writeConfig(cfgPath, cfg); err != nil {
		cError.Printf("  ✗ Failed to write config: %v\n", err)
		return err
	}
	cSuccess.Printf("  ✓ Created %s\n", cfgPath)

	if err := os.MkdirAll(consts.DefaultWorkspaceDir(), 0o755); err != nil {
		cError.Printf("  ✗ Failed to create workspace: %v\n", err)
		return err
	}
	cSuccess.Printf("  ✓ Initialized workspace at %s\n", consts.DefaultWorkspaceDir())

	fmt.Println()
	cSuccess.Println("  All set! Run \"tempo run\" to start.")
	fmt.Println()
	return nil
}

func writeConfig(path string, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func splitTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ── input helpers ──────────────────────────────────────────────────

func (r *OnboardRunner) prompt(label string) string {
	cPrompt.Printf("%s > ", label)
	if r.scanner.Scan() {
		return strings.TrimSpace(r.scanner.Text())
	}
	return ""
}

func (r *OnboardRunner) promptDefault(label string, defaultVal string) string {
	if defaultVal != "" {
		cPrompt.Printf("%s ", label)
		cDim.Printf("[%s]", defaultVal)
		cPrompt.Print(" > ")
	} else {
		cPrompt.Printf("%s > ", label)
	}

	if r.scanner.Scan() {
		val := strings.TrimSpace(r.scanner.Text())
		if val != "" {
			return val
		}
	}
	return defaultVal
}

func (r *OnboardRunner) promptRequired(label string) string {
	for {
		val := r.prompt(label)
		if val != "" {
			return val
		}
		cError.Println("  This field is required.")
	}
}

func (r *OnboardRunner) confirm(label string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}

	cPrompt.Printf("%s %s > ", label, hint)
	if r.scanner.Scan() {
		val := strings.ToLower(strings.TrimSpace(r.scanner.Text()))
		if val == "" {
			return defaultYes
		}
		return val == "y" || val == "yes"
	}
	return defaultYes
}

func (r *OnboardRunner) printStepHeader(step string, title string) {
	cStep.Printf("═══ %s: %s ═══\n\n", step, title)
}
