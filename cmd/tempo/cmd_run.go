package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tempobot/tempo/internal/adapter/discord"
	"github.com/tempobot/tempo/internal/bridge"
	"github.com/tempobot/tempo/internal/config"
	"github.com/tempobot/tempo/internal/consts"
	"github.com/tempobot/tempo/internal/executor"
	"github.com/tempobot/tempo/internal/forum"
	"github.com/tempobot/tempo/internal/ops"
	"github.com/tempobot/tempo/internal/parser"
	"github.com/tempobot/tempo/internal/pkg/logs"
	"github.com/tempobot/tempo/internal/pkg/updater"
	"github.com/tempobot/tempo/internal/pkg/utils"
	"github.com/tempobot/tempo/internal/runctl"
	"github.com/tempobot/tempo/internal/runner"
	"github.com/tempobot/tempo/internal/runstats"
	"github.com/tempobot/tempo/internal/scheduler"
	"github.com/tempobot/tempo/internal/syncer"
)

var runHwd = &RunRunner{}

type RunRunner struct{}

func (r *RunRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the scheduler runtime connected to Discord",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the config file",
				Value: consts.DefaultConfigPath(),
			},
		},
		Action: r.run,
	}
}

func (r *RunRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		fmt.Printf("No config found at %s. Create one before running.\n", cfgPath)
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config error: %w", err)
	}

	if err = logs.Init(logs.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}

	logs.CtxInfo(ctx, "booting tempo runtime, using config file: %s...", cfgPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Durable state.
	stats := runstats.NewStore(cfg.Scheduler.StatePath)
	if err = stats.Load(); err != nil {
		return fmt.Errorf("load run state: %w", err)
	}
	tags, err := forum.LoadTagMap(cfg.Sync.TagMapPath, cfg.Sync.TagTemplate)
	if err != nil {
		return fmt.Errorf("load tag map: %w", err)
	}
	logs.CtxInfo(ctx, "tag map loaded with names: %s", strings.Join(tags.Names(), ", "))

	// Platform adapter.
	adapter, err := discord.New(cfg.Discord.Token, cfg.Discord.GuildID, cfg.Discord.ForumChannelID)
	if err != nil {
		return fmt.Errorf("create discord adapter: %w", err)
	}
	if err = adapter.Open(ctx); err != nil {
		return fmt.Errorf("connect to discord: %w", err)
	}
	defer adapter.Close()

	// Execution pipeline.
	svc := runner.NewCLIRunner(cfg.Runner.Command)
	ctl := runctl.NewRegistry()
	exec := executor.New(svc, adapter.Resolver(), stats, ctl,
		adapter.Notifier(cfg.Discord.OperatorChannelID), nil, executor.Options{
			Model:      cfg.Runner.Model,
			WorkingDir: cfg.Runner.WorkingDir,
			Timeout:    time.Duration(cfg.Runner.TimeoutSec) * time.Second,
			Tools:      cfg.Runner.Tools,
		})
	sched := scheduler.New(ctx, exec.Execute)
	defer sched.StopAll()

	// Display sync.
	syncSvc := syncer.New(adapter.Forum(), sched, stats, tags, svc, syncer.Options{
		OpDelay:      time.Duration(cfg.Sync.OpDelayMs) * time.Millisecond,
		PurposeTags:  cfg.Sync.PurposeTags,
		Models:       cfg.Runner.Models,
		DefaultModel: cfg.Runner.Model,
	})

	// Thread lifecycle.
	p := parser.New(svc, cfg.Runner.Model, time.Duration(cfg.Runner.TimeoutSec)*time.Second)
	br := bridge.New(adapter.Forum(), sched, stats, ctl, p, bridge.Config{
		GuildID:        cfg.Discord.GuildID,
		BotUserID:      adapter.BotUserID(),
		AllowedUserIDs: cfg.Discord.AllowedUserIDs,
		Sync:           syncSvc.SyncThread,
	})
	adapter.BindBridge(ctx, br)

	if err = br.RecoverAll(ctx); err != nil {
		return fmt.Errorf("recover jobs from threads: %w", err)
	}

	go syncSvc.Run(ctx, time.Duration(cfg.Sync.IntervalSec)*time.Second)

	var opsSrv *ops.Server
	if cfg.Ops.Enabled {
		if host, _, herr := net.SplitHostPort(cfg.Ops.Bind); herr == nil && !utils.IsPrivateHost(host) {
			logs.CtxWarn(ctx, "ops server binding to public address %s; endpoints are unauthenticated", cfg.Ops.Bind)
		}
		opsSrv = ops.New(cfg.Ops.Bind, sched)
		opsSrv.Start()
		logs.CtxInfo(ctx, "ops server listening on %s", cfg.Ops.Bind)
	}

	go r.checkForUpdates(ctx, adapter.Notifier(cfg.Discord.OperatorChannelID))

	logs.CtxInfo(ctx, "ALL IS WELL!!! Press Ctrl+C to stop.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "Received shutdown signal (%s). Stopping runtime...", sig.String())
	case <-ctx.Done():
		logs.CtxInfo(ctx, "Context canceled. Stopping runtime...")
	}

	if opsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			logs.CtxWarn(ctx, "shutdown ops server error: %v", err)
		}
		shutdownCancel()
	}

	logs.CtxInfo(ctx, "all stopped, good bye!")
	return nil
}

// checkForUpdates does a single startup release check and tells the operator
// when a newer build is out. Applying the update stays a manual step.
func (r *RunRunner) checkForUpdates(ctx context.Context, notifier forum.Notifier) {
	release, err := updater.New().CheckLatest(ctx)
	if err != nil {
		logs.CtxDebug(ctx, "update check skipped: %v", err)
		return
	}
	if release == nil {
		return
	}
	forum.Notify(ctx, notifier, fmt.Sprintf(
		"🆕 Tempo %s is available. Run `tempo update` on the host to upgrade.", release.TagName))
}
