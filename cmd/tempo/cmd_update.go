package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tempobot/tempo"
	"github.com/tempobot/tempo/internal/config"
	"github.com/tempobot/tempo/internal/consts"
	"github.com/tempobot/tempo/internal/pkg/updater"
)

var updateHwd = &UpdateRunner{}

type UpdateRunner struct{}

func (r *UpdateRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:   "update",
		Usage:  "Check for and apply updates from GitHub releases",
		Action: r.run,
	}
}

func (r *UpdateRunner) run(ctx context.Context, _ *cli.Command) error {
	fmt.Printf("Tempo %s\n", tempo.VERSION)
	fmt.Println("Checking for updates...")

	u := updater.New()
	release, err := u.CheckLatest(ctx)
	if err != nil {
		return fmt.Errorf("check for updates: %w", err)
	}
	if release == nil {
		fmt.Println("Already up to date.")
		return nil
	}

	fmt.Printf("New version available: %s\n", release.TagName)
	fmt.Print("Download and install? [y/N] ")

	var answer string
	fmt.Scanln(&answer)
	if answer != "y" && answer != "Y" {
		fmt.Println("Update cancelled.")
		return nil
	}

	tmpDir, err := os.MkdirTemp("", "tempo-update-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	fmt.Println("Downloading...")
	binaryPath, err := u.Download(ctx, release, tmpDir)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	fmt.Println("Applying update...")
	if err := u.Apply(binaryPath); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}

	fmt.Printf("Successfully updated to %s!\n", release.TagName)

	if r.isRuntimeRunning() {
		fmt.Println("\nNote: The scheduler runtime is currently running. Restart it to use the new version.")
	}
	return nil
}

// isRuntimeRunning probes the ops server's health endpoint.
func (r *UpdateRunner) isRuntimeRunning() bool {
	cfg, err := config.Load(consts.DefaultConfigPath())
	if err != nil || !cfg.Ops.Enabled || cfg.Ops.Bind == "" {
		return false
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", cfg.Ops.Bind))
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
