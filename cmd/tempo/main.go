package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tempobot/tempo/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "tempo",
		Usage: "Forum-driven cron jobs for your AI assistant",
		Commands: []*cli.Command{
			runHwd.cmd(),
			jobsHwd.cmd(),
			onboardHwd.cmd(),
			updateHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
