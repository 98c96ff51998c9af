// Package bridge connects forum thread lifecycle events to job registration.
// A thread in the watched forum IS a job definition: creating one registers a
// job, editing its starter message reloads it, archiving disables it, and
// deleting it unregisters and cancels any in-flight run.
package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tempobot/tempo/internal/forum"
	"github.com/tempobot/tempo/internal/parser"
	"github.com/tempobot/tempo/internal/pkg/logs"
	"github.com/tempobot/tempo/internal/runctl"
	"github.com/tempobot/tempo/internal/runstats"
	"github.com/tempobot/tempo/internal/scheduler"
	"github.com/tempobot/tempo/internal/trigger"
)

// RegistrationKind distinguishes why a job is being (re)registered, which
// controls user-facing feedback: only a brand-new thread gets the
// confirmation message.
type RegistrationKind int

const (
	// First is a freshly created thread.
	First RegistrationKind = iota
	// Reparse is a starter-message edit or an unarchive of an unknown thread.
	Reparse
	// Recovery is startup reconstruction from already-existing threads.
	Recovery
)

// Parser extracts a job definition from free text, returning nil when the
// text does not describe one.
type Parser interface {
	Parse(ctx context.Context, text string) *parser.Definition
}

// SyncFunc lets the bridge request an immediate display sync for one thread
// after a registration change. Optional.
type SyncFunc func(ctx context.Context, threadID string)

type Bridge struct {
	forum     forum.Forum
	sched     *scheduler.Scheduler
	stats     *runstats.Store
	ctl       *runctl.Registry
	parser    Parser
	guildID   string
	botUserID string
	allowed   map[string]struct{} // empty means any author
	sync      SyncFunc            // optional
}

type Config struct {
	GuildID        string
	BotUserID      string
	AllowedUserIDs []string
	Sync           SyncFunc
}

func New(f forum.Forum, sched *scheduler.Scheduler, stats *runstats.Store,
	ctl *runctl.Registry, p Parser, cfg Config) *Bridge {
	allowed := make(map[string]struct{}, len(cfg.AllowedUserIDs))
	for _, id := range cfg.AllowedUserIDs {
		allowed[id] = struct{}{}
	}
	return &Bridge{
		forum:     f,
		sched:     sched,
		stats:     stats,
		ctl:       ctl,
		parser:    p,
		guildID:   cfg.GuildID,
		botUserID: cfg.BotUserID,
		allowed:   allowed,
		sync:      cfg.Sync,
	}
}

// inForum reports whether the thread belongs to the watched forum. Events for
// threads elsewhere in the guild are ignored.
func (b *Bridge) inForum(t forum.Thread) bool {
	return t.ParentID() == b.forum.ID()
}

func (b *Bridge) authorized(authorID string) bool {
	if authorID == b.botUserID {
		return true
	}
	if len(b.allowed) == 0 {
		return true
	}
	_, ok := b.allowed[authorID]
	return ok
}

// HandleThreadCreate registers the job described by a new thread's starter
// message. Threads started by unauthorized users are answered with guidance
// and archived without ever reaching the parsing service.
func (b *Bridge) HandleThreadCreate(ctx context.Context, t forum.Thread) {
	if !b.inForum(t) {
		return
	}
	logs.CtxInfo(ctx, "[bridge] thread created: %q (%s)", t.Name(), t.ID())

	msg, err := t.StarterMessage(ctx)
	if err != nil {
		logs.CtxError(ctx, "[bridge] starter message for %s: %v", t.ID(), err)
		return
	}

	if !b.authorized(msg.AuthorID) {
		logs.CtxWarn(ctx, "[bridge] thread %s: author %s not authorized", t.ID(), msg.AuthorID)
		b.reply(ctx, t, "Jobs can only be created by authorized operators. "+
			"Ask an operator to create this job for you, e.g. via the job creation command. "+
			"This thread will be archived.")
		if err := t.SetArchived(ctx, true); err != nil {
			logs.CtxError(ctx, "[bridge] archive unauthorized thread %s: %v", t.ID(), err)
		}
		return
	}

	b.register(ctx, t, msg.Content, First)
}

// HandleStarterEdit reloads the job from an edited starter message. A
// successful reload is silent; parse or schedule failures are reported in the
// thread and leave the existing job running with its previous definition.
func (b *Bridge) HandleStarterEdit(ctx context.Context, t forum.Thread, content string) {
	if !b.inForum(t) {
		return
	}
	logs.CtxInfo(ctx, "[bridge] starter edited: %q (%s)", t.Name(), t.ID())

	def := b.parser.Parse(ctx, content)
	if def == nil {
		b.reply(ctx, t, "I couldn't read a job definition from the edited message. "+
			"The previous definition stays in effect.")
		return
	}
	if err := trigger.Validate(def.Schedule, def.Timezone); err != nil {
		b.reply(ctx, t, fmt.Sprintf("The edited schedule `%s` is not valid (%v). "+
			"The previous definition stays in effect.", def.Schedule, err))
		return
	}

	job, err := b.sched.Reload(t.ID(), *def)
	if err != nil {
		b.reply(ctx, t, fmt.Sprintf("Reloading the job failed: %v. "+
			"The previous definition stays in effect.", err))
		return
	}
	if job == nil {
		// Edit arrived for a thread we never registered; treat as new.
		b.register(ctx, t, content, Reparse)
		return
	}

	if err := b.stats.SetDisabled(job.CronID, false); err != nil {
		logs.CtxError(ctx, "[bridge] persist enable for %s: %v", job.CronID, err)
	}
	// No confirmation reply on a reparse; only the first registration gets
	// one, to keep threads quiet.
	b.afterSync(ctx, t.ID())
}

// HandleThreadArchive stops the job's trigger. The definition and history are
// kept so unarchiving resumes it.
func (b *Bridge) HandleThreadArchive(ctx context.Context, t forum.Thread) {
	if !b.inForum(t) {
		return
	}
	logs.CtxInfo(ctx, "[bridge] thread archived: %q (%s)", t.Name(), t.ID())

	if !b.sched.Disable(t.ID()) {
		return
	}
	if rec, ok := b.stats.FindByThread(t.ID()); ok {
		if err := b.stats.SetDisabled(rec.CronID, true); err != nil {
			logs.CtxError(ctx, "[bridge] persist disable for %s: %v", rec.CronID, err)
		}
	}
}

// HandleThreadUnarchive resumes a disabled job, or re-parses the starter when
// the thread is unknown to the scheduler (e.g. archived before startup).
func (b *Bridge) HandleThreadUnarchive(ctx context.Context, t forum.Thread) {
	if !b.inForum(t) {
		return
	}
	logs.CtxInfo(ctx, "[bridge] thread unarchived: %q (%s)", t.Name(), t.ID())

	if _, known := b.sched.GetJob(t.ID()); known {
		if !b.sched.Enable(t.ID()) {
			logs.CtxError(ctx, "[bridge] enable job for thread %s failed", t.ID())
			return
		}
		if rec, ok := b.stats.FindByThread(t.ID()); ok {
			if err := b.stats.SetDisabled(rec.CronID, false); err != nil {
				logs.CtxError(ctx, "[bridge] persist enable for %s: %v", rec.CronID, err)
			}
		}
		b.afterSync(ctx, t.ID())
		return
	}

	msg, err := t.StarterMessage(ctx)
	if err != nil {
		logs.CtxError(ctx, "[bridge] starter message for %s: %v", t.ID(), err)
		return
	}
	b.register(ctx, t, msg.Content, Reparse)
}

// HandleThreadDelete removes the job and cancels any in-flight run.
func (b *Bridge) HandleThreadDelete(ctx context.Context, threadID string) {
	logs.CtxInfo(ctx, "[bridge] thread deleted: %s", threadID)

	if b.sched.Unregister(threadID) {
		if b.ctl.RequestCancel(threadID) {
			logs.CtxInfo(ctx, "[bridge] canceled in-flight run for deleted thread %s", threadID)
		}
	}
}

// RecoverAll rebuilds the job set from existing active threads at startup.
// Run records provide cron-id continuity; threads whose records say disabled
// come back disabled.
func (b *Bridge) RecoverAll(ctx context.Context) error {
	threads, err := b.forum.ActiveThreads(ctx)
	if err != nil {
		return fmt.Errorf("list active threads: %w", err)
	}

	recovered := 0
	for _, t := range threads {
		msg, err := t.StarterMessage(ctx)
		if err != nil {
			logs.CtxError(ctx, "[bridge] recover %s: starter message: %v", t.ID(), err)
			continue
		}
		if job := b.register(ctx, t, msg.Content, Recovery); job != nil {
			recovered++
		}
	}
	logs.CtxInfo(ctx, "[bridge] recovered %d/%d threads", recovered, len(threads))
	return nil
}

// register parses content and installs the job, reusing the thread's existing
// cron id when run records know it. Returns the job, or nil when nothing was
// registered.
func (b *Bridge) register(ctx context.Context, t forum.Thread, content string, kind RegistrationKind) *scheduler.Job {
	def := b.parser.Parse(ctx, content)
	if def == nil {
		logs.CtxWarn(ctx, "[bridge] thread %s: no job definition in starter", t.ID())
		if kind != Recovery {
			b.reply(ctx, t, "I couldn't read a job definition from this message. "+
				"Describe the task, when it should run (a cron schedule or plain words), "+
				"and which channel the result goes to.")
		}
		return nil
	}
	if err := trigger.Validate(def.Schedule, def.Timezone); err != nil {
		logs.CtxWarn(ctx, "[bridge] thread %s: invalid schedule %q: %v", t.ID(), def.Schedule, err)
		if kind != Recovery {
			b.reply(ctx, t, fmt.Sprintf("The schedule `%s` is not valid: %v", def.Schedule, err))
		}
		return nil
	}

	cronID := uuid.NewString()
	disabled := false
	if rec, ok := b.stats.FindByThread(t.ID()); ok {
		cronID = rec.CronID
		disabled = rec.Disabled
	}

	name := strings.TrimSpace(t.Name())
	job, err := b.sched.Register(t.ID(), cronID, b.guildID, name, *def)
	if err != nil {
		logs.CtxError(ctx, "[bridge] register thread %s: %v", t.ID(), err)
		if kind != Recovery {
			b.reply(ctx, t, fmt.Sprintf("Registering the job failed: %v", err))
		}
		return nil
	}
	if err := b.stats.Ensure(cronID, t.ID()); err != nil {
		logs.CtxError(ctx, "[bridge] ensure run record for %s: %v", cronID, err)
	}
	if disabled && kind == Recovery {
		b.sched.Disable(t.ID())
	}

	if kind == First {
		b.reply(ctx, t, fmt.Sprintf(
			"✅ Job registered.\nSchedule: `%s` (%s)\nChannel: #%s\nNext runs will post automatically.",
			def.Schedule, def.Timezone, def.Channel))
	}
	b.afterSync(ctx, t.ID())
	return job
}

func (b *Bridge) reply(ctx context.Context, t forum.Thread, content string) {
	if _, err := t.Send(ctx, content); err != nil {
		logs.CtxError(ctx, "[bridge] reply in thread %s: %v", t.ID(), err)
	}
}

func (b *Bridge) afterSync(ctx context.Context, threadID string) {
	if b.sync != nil {
		b.sync(ctx, threadID)
	}
}
