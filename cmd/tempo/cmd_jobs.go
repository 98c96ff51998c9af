package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/tempobot/tempo/internal/consts"
	"github.com/tempobot/tempo/internal/runstats"
)

var jobsHwd = &JobsRunner{}

type JobsRunner struct{}

func (r *JobsRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect persisted job state",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List run records from the state file (works offline)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "state",
						Usage: "Path to the run state file",
						Value: consts.DefaultRunStatePath(),
					},
				},
				Action: r.list,
			},
		},
	}
}

func (r *JobsRunner) list(_ context.Context, cmd *cli.Command) error {
	store := runstats.NewStore(cmd.String("state"))
	if err := store.Load(); err != nil {
		return fmt.Errorf("load run state: %w", err)
	}

	records := store.List()
	if len(records) == 0 {
		fmt.Println("No job records found.")
		return nil
	}
	sort.Slice(records, func(i, k int) bool { return records[i].CronID < records[k].CronID })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CRON ID\tTHREAD\tCADENCE\tRUNS\tLAST RUN\tSTATUS")
	for _, rec := range records {
		lastRun := "never"
		if rec.LastRunAt != nil {
			lastRun = rec.LastRunAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.CronID, rec.ThreadID, rec.Cadence, rec.RunCount, lastRun, formatStatus(rec))
	}
	return w.Flush()
}

func formatStatus(rec runstats.Record) string {
	switch {
	case rec.Disabled:
		return color.YellowString("disabled")
	case rec.LastRunStatus == runstats.StatusError:
		return color.RedString("error")
	case rec.LastRunStatus == runstats.StatusSuccess:
		return color.GreenString("success")
	default:
		return "-"
	}
}
