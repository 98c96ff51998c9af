// Package executor runs jobs when their triggers fire: it enforces the
// overlap guard, invokes the completion service, posts results, and updates
// run statistics.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tempobot/tempo/internal/forum"
	"github.com/tempobot/tempo/internal/pkg/logs"
	"github.com/tempobot/tempo/internal/pkg/metrics"
	"github.com/tempobot/tempo/internal/pkg/textutil"
	"github.com/tempobot/tempo/internal/runctl"
	"github.com/tempobot/tempo/internal/runner"
	"github.com/tempobot/tempo/internal/runstats"
	"github.com/tempobot/tempo/internal/scheduler"
)

// messageLimit is the platform's maximum message length; longer results are
// chunk-split.
const messageLimit = 2000

// ActionRunner executes structured side-effect actions embedded in completion
// output and returns text to append to the posted result. The action
// framework itself lives outside this module; a nil ActionRunner simply posts
// output verbatim.
type ActionRunner interface {
	Execute(ctx context.Context, output string) (string, error)
}

// Options carries the runner invocation defaults shared by all jobs.
type Options struct {
	Model      string
	WorkingDir string
	Timeout    time.Duration
	Tools      []string
}

type Executor struct {
	runner   runner.Runner
	resolver forum.ChannelResolver
	stats    *runstats.Store
	ctl      *runctl.Registry
	operator forum.Notifier // optional
	actions  ActionRunner   // optional
	opts     Options
}

func New(r runner.Runner, resolver forum.ChannelResolver, stats *runstats.Store,
	ctl *runctl.Registry, operator forum.Notifier, actions ActionRunner, opts Options) *Executor {
	return &Executor{
		runner:   r,
		resolver: resolver,
		stats:    stats,
		ctl:      ctl,
		operator: operator,
		actions:  actions,
		opts:     opts,
	}
}

// Execute runs one fire of a job. It is the scheduler's FireFunc.
//
// Guarantees: at most one concurrent execution per job (skipped fires are
// dropped, never queued); a configuration failure or service error never
// marks the run successful; the run-control entry for this run is always
// cleaned up, and only this run's entry.
func (e *Executor) Execute(ctx context.Context, job *scheduler.Job) {
	metrics.RunsTotal.Inc()

	if !job.TryBeginRun() {
		logs.CtxWarn(ctx, "[executor] job %q (%s) still running, skipping fire", job.Name, job.ID)
		metrics.RunsSkipped.Inc()
		return
	}
	defer job.EndRun()

	def := job.Definition()
	logs.CtxInfo(ctx, "[executor] job %q (%s) fired, channel=%s", job.Name, job.ID, def.Channel)

	// Unresolvable guild/channel is an operator problem, not a job failure:
	// report it and leave the run unmarked.
	target, err := e.resolver.Resolve(ctx, job.GuildID, def.Channel)
	if err != nil {
		logs.CtxError(ctx, "[executor] job %q (%s): resolve channel %q: %v", job.Name, job.ID, def.Channel, err)
		forum.Notify(ctx, e.operator, fmt.Sprintf(
			"⚠️ Configuration error in job **%s**: cannot resolve channel `%s` (%v)", job.Name, def.Channel, err))
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ref := uuid.NewString()
	e.ctl.Register(job.ID, ref, cancel)
	defer e.ctl.Clear(job.ID, ref)

	rec, _ := e.stats.Get(job.CronID)
	model := e.opts.Model
	if rec.ModelOverride != "" {
		model = rec.ModelOverride
	}

	output, err := runner.Collect(runCtx, e.runner, runner.Request{
		Prompt:       buildRunPrompt(job.Name, def.Prompt),
		Model:        model,
		WorkingDir:   e.opts.WorkingDir,
		Timeout:      e.opts.Timeout,
		ToolsAllowed: e.opts.Tools,
	})
	if err != nil {
		logs.CtxError(ctx, "[executor] job %q (%s) run failed: %v", job.Name, job.ID, err)
		metrics.RunsFailed.Inc()
		forum.Notify(ctx, e.operator, fmt.Sprintf("❌ Job **%s** failed: %v", job.Name, err))
		if serr := e.stats.MarkError(job.CronID, job.ID, err.Error()); serr != nil {
			logs.CtxError(ctx, "[executor] persist error result for %s: %v", job.CronID, serr)
		}
		return
	}

	if output == "" {
		// Nothing to post. The run is neither a success nor a failure for
		// statistics purposes.
		logs.CtxInfo(ctx, "[executor] job %q (%s) produced no output", job.Name, job.ID)
		return
	}

	if e.actions != nil {
		appended, aerr := e.actions.Execute(runCtx, output)
		if aerr != nil {
			logs.CtxWarn(ctx, "[executor] job %q (%s) action execution: %v", job.Name, job.ID, aerr)
		} else if appended != "" {
			output += "\n" + appended
		}
	}

	for _, chunk := range textutil.ChunkSplit(output, messageLimit) {
		if err := target.Send(ctx, chunk); err != nil {
			logs.CtxError(ctx, "[executor] job %q (%s) post to %s: %v", job.Name, job.ID, target.ID(), err)
			forum.Notify(ctx, e.operator, fmt.Sprintf("❌ Job **%s**: posting result failed: %v", job.Name, err))
			if serr := e.stats.MarkError(job.CronID, job.ID, "post result: "+err.Error()); serr != nil {
				logs.CtxError(ctx, "[executor] persist error result for %s: %v", job.CronID, serr)
			}
			return
		}
	}

	metrics.RunsSucceeded.Inc()
	if err := e.stats.MarkSuccess(job.CronID, job.ID); err != nil {
		logs.CtxError(ctx, "[executor] persist success result for %s: %v", job.CronID, err)
	}
	logs.CtxInfo(ctx, "[executor] job %q (%s) completed, %d bytes posted", job.Name, job.ID, len(output))
}

func buildRunPrompt(name, prompt string) string {
	return fmt.Sprintf("You are executing the scheduled task %q. %s", name, prompt)
}
