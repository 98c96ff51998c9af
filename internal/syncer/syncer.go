// Package syncer reconciles forum thread display (name, tags, pinned status
// message) with scheduler and run-statistics state. Every pass is idempotent:
// with no intervening state change, a second pass issues zero writes.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tempobot/tempo/internal/cadence"
	"github.com/tempobot/tempo/internal/forum"
	"github.com/tempobot/tempo/internal/pkg/logs"
	"github.com/tempobot/tempo/internal/pkg/metrics"
	"github.com/tempobot/tempo/internal/runner"
	"github.com/tempobot/tempo/internal/runstats"
	"github.com/tempobot/tempo/internal/scheduler"
)

// maxAppliedTags is the platform cap on tags applied to one thread.
const maxAppliedTags = 5

// Options configures classification and pacing.
type Options struct {
	// OpDelay is the minimum gap between platform write operations; pure
	// rate-limit courtesy, not a correctness requirement.
	OpDelay time.Duration
	// PurposeTags is the closed label set for purpose classification.
	PurposeTags []string
	// Models is the closed label set for model classification.
	Models []string
	// DefaultModel is recorded when classification yields no match.
	DefaultModel string
	// ClassifyTimeout bounds each classification completion call.
	ClassifyTimeout time.Duration
}

type Synchronizer struct {
	forum   forum.Forum
	sched   *scheduler.Scheduler
	stats   *runstats.Store
	tags    *forum.TagMap
	runner  runner.Runner
	limiter *rate.Limiter
	opts    Options
}

func New(f forum.Forum, sched *scheduler.Scheduler, stats *runstats.Store,
	tags *forum.TagMap, r runner.Runner, opts Options) *Synchronizer {
	delay := opts.OpDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	if opts.ClassifyTimeout <= 0 {
		opts.ClassifyTimeout = 60 * time.Second
	}
	return &Synchronizer{
		forum:   f,
		sched:   sched,
		stats:   stats,
		tags:    tags,
		runner:  r,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		opts:    opts,
	}
}

// Run executes sync passes on the given interval until ctx is canceled.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncAll(ctx)
		}
	}
}

// SyncAll runs the four reconciliation phases over all registered jobs. Each
// phase iterates the full job set; a failing item is logged and skipped so
// one broken thread cannot stall the rest.
func (s *Synchronizer) SyncAll(ctx context.Context) {
	jobs := s.sched.ListJobs()
	logs.CtxInfo(ctx, "[sync] pass started, %d jobs", len(jobs))

	for _, job := range jobs {
		if err := s.syncClassification(ctx, job); err != nil {
			logs.CtxWarn(ctx, "[sync] classification for %s: %v", job.ID, err)
		}
	}
	for _, job := range jobs {
		if err := s.syncName(ctx, job); err != nil {
			logs.CtxWarn(ctx, "[sync] name for %s: %v", job.ID, err)
		}
	}
	for _, job := range jobs {
		if err := s.syncStatusMessage(ctx, job); err != nil {
			logs.CtxWarn(ctx, "[sync] status message for %s: %v", job.ID, err)
		}
	}
	s.detectOrphans(ctx, jobs)

	logs.CtxInfo(ctx, "[sync] pass finished")
}

// SyncThread reconciles a single thread, used right after bridge events so
// users see the display catch up without waiting for the next full pass.
func (s *Synchronizer) SyncThread(ctx context.Context, threadID string) {
	job, ok := s.jobInfo(threadID)
	if !ok {
		return
	}
	if err := s.syncClassification(ctx, job); err != nil {
		logs.CtxWarn(ctx, "[sync] classification for %s: %v", threadID, err)
	}
	if err := s.syncName(ctx, job); err != nil {
		logs.CtxWarn(ctx, "[sync] name for %s: %v", threadID, err)
	}
	if err := s.syncStatusMessage(ctx, job); err != nil {
		logs.CtxWarn(ctx, "[sync] status message for %s: %v", threadID, err)
	}
}

func (s *Synchronizer) jobInfo(threadID string) (scheduler.Info, bool) {
	for _, job := range s.sched.ListJobs() {
		if job.ID == threadID {
			return job, true
		}
	}
	return scheduler.Info{}, false
}

// write paces and counts one platform write operation.
func (s *Synchronizer) write(ctx context.Context, op func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	metrics.SyncWrites.Inc()
	return op()
}

// --- phase 1: classification + tags ---

func (s *Synchronizer) syncClassification(ctx context.Context, job scheduler.Info) error {
	rec, _ := s.stats.Get(job.CronID)

	// Reclassify when the stored label is missing or not one we recognize,
	// as after a hand-edited state file or a label renamed between releases.
	if !cadence.Known(rec.Cadence) {
		rec.Cadence = cadence.Classify(job.Schedule).String()
		if err := s.stats.SetClassification(job.CronID, rec.Cadence, nil); err != nil {
			return fmt.Errorf("persist cadence: %w", err)
		}
	}

	if len(rec.PurposeTags) == 0 && len(s.opts.PurposeTags) > 0 {
		picked, err := s.classify(ctx, job, s.opts.PurposeTags,
			"Pick the labels that best describe this task's purpose.")
		if err != nil {
			return fmt.Errorf("classify purpose: %w", err)
		}
		if len(picked) > 0 {
			rec.PurposeTags = picked
			if err := s.stats.SetClassification(job.CronID, "", picked); err != nil {
				return fmt.Errorf("persist purpose tags: %w", err)
			}
		}
	}

	if rec.Model == "" && len(s.opts.Models) > 0 {
		picked, err := s.classify(ctx, job, s.opts.Models,
			"Pick the single most suitable model for this task.")
		if err != nil {
			return fmt.Errorf("classify model: %w", err)
		}
		model := s.opts.DefaultModel
		if len(picked) > 0 {
			model = picked[0]
		}
		if model != "" {
			rec.Model = model
			if err := s.stats.SetModel(job.CronID, model); err != nil {
				return fmt.Errorf("persist model: %w", err)
			}
		}
	}

	return s.applyTags(ctx, job, rec)
}

func (s *Synchronizer) applyTags(ctx context.Context, job scheduler.Info, rec runstats.Record) error {
	desired := make([]string, 0, maxAppliedTags)
	if id, ok := s.tags.ID(rec.Cadence); ok {
		desired = append(desired, id)
	}
	for _, name := range rec.PurposeTags {
		if len(desired) == maxAppliedTags {
			break
		}
		if id, ok := s.tags.ID(name); ok {
			desired = append(desired, id)
		}
	}

	thread, err := s.forum.Thread(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("fetch thread: %w", err)
	}
	if sameTagSet(thread.AppliedTags(), desired) {
		return nil
	}
	return s.write(ctx, func() error { return thread.ApplyTags(ctx, desired) })
}

func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// classify asks the completion service to choose from a closed label set.
// Anything outside the set in the response is discarded.
func (s *Synchronizer) classify(ctx context.Context, job scheduler.Info, labels []string, instruction string) ([]string, error) {
	prompt := fmt.Sprintf(
		"%s\nAllowed labels: %s\nTask name: %s\nTask schedule: %s\nRespond with only comma-separated labels from the allowed set.",
		instruction, strings.Join(labels, ", "), job.Name, job.Schedule)

	out, err := runner.Collect(ctx, s.runner, runner.Request{
		Prompt:  prompt,
		Model:   s.opts.DefaultModel,
		Timeout: s.opts.ClassifyTimeout,
	})
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]string, len(labels))
	for _, l := range labels {
		allowed[strings.ToLower(l)] = l
	}
	var picked []string
	for _, part := range strings.Split(out, ",") {
		if label, ok := allowed[strings.ToLower(strings.TrimSpace(part))]; ok {
			picked = append(picked, label)
		}
	}
	return picked, nil
}

// --- phase 2: thread name ---

func (s *Synchronizer) syncName(ctx context.Context, job scheduler.Info) error {
	rec, _ := s.stats.Get(job.CronID)
	expected := BuildThreadName(cadence.Cadence(rec.Cadence), job.Name)

	thread, err := s.forum.Thread(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("fetch thread: %w", err)
	}
	if thread.Name() == expected {
		return nil
	}
	return s.write(ctx, func() error { return thread.SetName(ctx, expected) })
}

// --- phase 3: pinned status message ---

func (s *Synchronizer) syncStatusMessage(ctx context.Context, job scheduler.Info) error {
	rec, _ := s.stats.Get(job.CronID)
	content := renderStatus(job, rec)
	digest := statusDigest(content)

	thread, err := s.forum.Thread(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("fetch thread: %w", err)
	}
	return s.EnsureStatusMessage(ctx, thread, job.CronID, rec, content, digest)
}

// EnsureStatusMessage edits the recorded status message when it still
// resolves, and otherwise creates, pins, and persists a fresh one. A stale
// recorded id (message deleted out from under us) falls through to create.
func (s *Synchronizer) EnsureStatusMessage(ctx context.Context, thread forum.Thread,
	cronID string, rec runstats.Record, content, digest string) error {
	if rec.StatusMessageID != "" && thread.MessageExists(ctx, rec.StatusMessageID) {
		if rec.StatusDigest == digest {
			return nil
		}
		if err := s.write(ctx, func() error {
			return thread.EditMessage(ctx, rec.StatusMessageID, content)
		}); err != nil {
			return fmt.Errorf("edit status message: %w", err)
		}
		return s.stats.SetStatusMessage(cronID, rec.StatusMessageID, digest)
	}

	var msgID string
	err := s.write(ctx, func() error {
		var serr error
		msgID, serr = thread.Send(ctx, content)
		return serr
	})
	if err != nil {
		return fmt.Errorf("create status message: %w", err)
	}
	if err := s.write(ctx, func() error { return thread.PinMessage(ctx, msgID) }); err != nil {
		logs.CtxWarn(ctx, "[sync] pin status message %s: %v", msgID, err)
	}
	return s.stats.SetStatusMessage(cronID, msgID, digest)
}

// --- phase 4: orphan detection ---

// detectOrphans logs active threads with no registered job. Deliberately
// non-destructive: cleanup is a human decision.
func (s *Synchronizer) detectOrphans(ctx context.Context, jobs []scheduler.Info) {
	threads, err := s.forum.ActiveThreads(ctx)
	if err != nil {
		logs.CtxWarn(ctx, "[sync] list active threads: %v", err)
		return
	}

	known := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		known[job.ID] = struct{}{}
	}
	for _, t := range threads {
		if _, ok := known[t.ID()]; !ok {
			logs.CtxWarn(ctx, "[sync] orphan thread %q (%s): active but no registered job", t.Name(), t.ID())
		}
	}
}
