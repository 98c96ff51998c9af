package bridge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tempobot/tempo/internal/forum"
	"github.com/tempobot/tempo/internal/parser"
	"github.com/tempobot/tempo/internal/runctl"
	"github.com/tempobot/tempo/internal/runstats"
	"github.com/tempobot/tempo/internal/scheduler"
)

type fakeThread struct {
	id       string
	name     string
	parentID string
	starter  *forum.Message
	replies  []string
	archived bool
}

func (t *fakeThread) ID() string            { return t.id }
func (t *fakeThread) Name() string          { return t.name }
func (t *fakeThread) ParentID() string      { return t.parentID }
func (t *fakeThread) Archived() bool        { return t.archived }
func (t *fakeThread) OwnerID() string       { return t.starter.AuthorID }
func (t *fakeThread) AppliedTags() []string { return nil }

func (t *fakeThread) StarterMessage(ctx context.Context) (*forum.Message, error) {
	return t.starter, nil
}

func (t *fakeThread) Send(ctx context.Context, content string) (string, error) {
	t.replies = append(t.replies, content)
	return fmt.Sprintf("msg-%d", len(t.replies)), nil
}

func (t *fakeThread) EditMessage(ctx context.Context, messageID, content string) error { return nil }
func (t *fakeThread) PinMessage(ctx context.Context, messageID string) error           { return nil }
func (t *fakeThread) MessageExists(ctx context.Context, messageID string) bool         { return false }
func (t *fakeThread) SetName(ctx context.Context, name string) error                   { return nil }
func (t *fakeThread) ApplyTags(ctx context.Context, tagIDs []string) error             { return nil }

func (t *fakeThread) SetArchived(ctx context.Context, archived bool) error {
	t.archived = archived
	return nil
}

type fakeForum struct {
	id      string
	threads []*fakeThread
}

func (f *fakeForum) ID() string { return f.id }

func (f *fakeForum) ActiveThreads(ctx context.Context) ([]forum.Thread, error) {
	out := make([]forum.Thread, 0, len(f.threads))
	for _, t := range f.threads {
		if !t.archived {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeForum) Thread(ctx context.Context, id string) (forum.Thread, error) {
	for _, t := range f.threads {
		if t.id == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("thread %s not found", id)
}

// stubParser maps starter text to canned definitions; nil means unparsable.
type stubParser struct {
	defs  map[string]*parser.Definition
	calls int
}

func (p *stubParser) Parse(ctx context.Context, text string) *parser.Definition {
	p.calls++
	return p.defs[text]
}

func validDef() *parser.Definition {
	return &parser.Definition{
		Schedule: "0 9 * * 1",
		Timezone: "UTC",
		Channel:  "general",
		Prompt:   "Post the weekly summary",
	}
}

type fixture struct {
	bridge *Bridge
	forum  *fakeForum
	sched  *scheduler.Scheduler
	stats  *runstats.Store
	ctl    *runctl.Registry
	parser *stubParser
}

func newFixture(t *testing.T, allowed []string) *fixture {
	t.Helper()

	stats := runstats.NewStore(filepath.Join(t.TempDir(), "runstate.json"))
	if err := stats.Load(); err != nil {
		t.Fatal(err)
	}
	sched := scheduler.New(context.Background(), func(ctx context.Context, job *scheduler.Job) {})
	t.Cleanup(sched.StopAll)

	f := &fakeForum{id: "forum-1"}
	p := &stubParser{defs: map[string]*parser.Definition{"weekly summary please": validDef()}}
	ctl := runctl.NewRegistry()

	b := New(f, sched, stats, ctl, p, Config{
		GuildID:        "guild-1",
		BotUserID:      "bot-user",
		AllowedUserIDs: allowed,
	})
	return &fixture{bridge: b, forum: f, sched: sched, stats: stats, ctl: ctl, parser: p}
}

func (f *fixture) addThread(id, name, authorID, starter string) *fakeThread {
	t := &fakeThread{
		id:       id,
		name:     name,
		parentID: f.forum.id,
		starter:  &forum.Message{ID: id, AuthorID: authorID, Content: starter},
	}
	f.forum.threads = append(f.forum.threads, t)
	return t
}

func TestThreadCreate_RegistersAndConfirms(t *testing.T) {
	f := newFixture(t, []string{"alice"})
	th := f.addThread("thread-1", "weekly summary", "alice", "weekly summary please")

	f.bridge.HandleThreadCreate(context.Background(), th)

	job, ok := f.sched.GetJob("thread-1")
	if !ok {
		t.Fatal("job not registered")
	}
	if job.Definition().Schedule != "0 9 * * 1" {
		t.Errorf("schedule = %q", job.Definition().Schedule)
	}
	if len(th.replies) != 1 || !strings.Contains(th.replies[0], "Job registered") {
		t.Errorf("replies = %v", th.replies)
	}
	if _, ok := f.stats.FindByThread("thread-1"); !ok {
		t.Error("run record not created")
	}
}

func TestThreadCreate_UnauthorizedAuthor(t *testing.T) {
	f := newFixture(t, []string{"alice"})
	th := f.addThread("thread-1", "weekly summary", "mallory", "weekly summary please")

	f.bridge.HandleThreadCreate(context.Background(), th)

	if f.parser.calls != 0 {
		t.Error("parser must not run for unauthorized authors")
	}
	if _, ok := f.sched.GetJob("thread-1"); ok {
		t.Error("job must not be registered")
	}
	if !th.archived {
		t.Error("thread should be archived")
	}
	if len(th.replies) != 1 {
		t.Fatalf("replies = %v", th.replies)
	}
}

func TestThreadCreate_BotAuthorAllowed(t *testing.T) {
	f := newFixture(t, []string{"alice"})
	th := f.addThread("thread-1", "weekly summary", "bot-user", "weekly summary please")

	f.bridge.HandleThreadCreate(context.Background(), th)

	if _, ok := f.sched.GetJob("thread-1"); !ok {
		t.Error("bot-authored threads should register")
	}
}

func TestThreadCreate_UnparsableStarter(t *testing.T) {
	f := newFixture(t, nil)
	th := f.addThread("thread-1", "hello", "alice", "just saying hi")

	f.bridge.HandleThreadCreate(context.Background(), th)

	if _, ok := f.sched.GetJob("thread-1"); ok {
		t.Error("unparsable starter must not register")
	}
	if len(th.replies) != 1 || !strings.Contains(th.replies[0], "couldn't read") {
		t.Errorf("replies = %v", th.replies)
	}
}

func TestThreadCreate_InvalidSchedule(t *testing.T) {
	f := newFixture(t, nil)
	f.parser.defs["bad schedule"] = &parser.Definition{
		Schedule: "not a cron line", Timezone: "UTC", Channel: "general", Prompt: "x",
	}
	th := f.addThread("thread-1", "bad", "alice", "bad schedule")

	f.bridge.HandleThreadCreate(context.Background(), th)

	if _, ok := f.sched.GetJob("thread-1"); ok {
		t.Error("invalid schedule must not register")
	}
	if len(th.replies) != 1 || !strings.Contains(th.replies[0], "not valid") {
		t.Errorf("replies = %v", th.replies)
	}
}

func TestThreadCreate_IgnoresOtherForums(t *testing.T) {
	f := newFixture(t, nil)
	th := f.addThread("thread-1", "weekly summary", "alice", "weekly summary please")
	th.parentID = "some-other-channel"

	f.bridge.HandleThreadCreate(context.Background(), th)

	if f.parser.calls != 0 {
		t.Error("threads outside the forum must be ignored")
	}
}

func TestStarterEdit_ReloadsDefinition(t *testing.T) {
	f := newFixture(t, nil)
	th := f.addThread("thread-1", "weekly summary", "alice", "weekly summary please")
	f.bridge.HandleThreadCreate(context.Background(), th)

	edited := validDef()
	edited.Schedule = "30 8 * * *"
	f.parser.defs["run daily instead"] = edited

	f.bridge.HandleStarterEdit(context.Background(), th, "run daily instead")

	job, _ := f.sched.GetJob("thread-1")
	if job.Definition().Schedule != "30 8 * * *" {
		t.Errorf("schedule = %q, want reloaded", job.Definition().Schedule)
	}
}

func TestStarterEdit_SuccessfulReloadIsSilent(t *testing.T) {
	f := newFixture(t, nil)
	th := f.addThread("thread-1", "weekly summary", "alice", "weekly summary please")
	f.bridge.HandleThreadCreate(context.Background(), th)
	th.replies = nil

	edited := validDef()
	edited.Schedule = "30 8 * * *"
	f.parser.defs["run daily instead"] = edited

	f.bridge.HandleStarterEdit(context.Background(), th, "run daily instead")

	// Only the first registration gets a confirmation; reparses post
	// nothing so edits don't clutter the thread.
	if len(th.replies) != 0 {
		t.Errorf("replies after successful edit = %v, want none", th.replies)
	}
	job, _ := f.sched.GetJob("thread-1")
	if job.Definition().Schedule != "30 8 * * *" {
		t.Errorf("schedule = %q, want reloaded", job.Definition().Schedule)
	}
}

func TestStarterEdit_InvalidEditKeepsOldDefinition(t *testing.T) {
	f := newFixture(t, nil)
	th := f.addThread("thread-1", "weekly summary", "alice", "weekly summary please")
	f.bridge.HandleThreadCreate(context.Background(), th)
	th.replies = nil

	f.bridge.HandleStarterEdit(context.Background(), th, "gibberish")

	job, _ := f.sched.GetJob("thread-1")
	if job.Definition().Schedule != "0 9 * * 1" {
		t.Errorf("schedule = %q, want original preserved", job.Definition().Schedule)
	}
	if len(th.replies) != 1 || !strings.Contains(th.replies[0], "previous definition") {
		t.Errorf("replies = %v", th.replies)
	}
}

func TestArchiveDisablesAndUnarchiveResumes(t *testing.T) {
	f := newFixture(t, nil)
	th := f.addThread("thread-1", "weekly summary", "alice", "weekly summary please")
	f.bridge.HandleThreadCreate(context.Background(), th)
	ctx := context.Background()

	f.bridge.HandleThreadArchive(ctx, th)
	jobs := f.sched.ListJobs()
	if len(jobs) != 1 || !jobs[0].Disabled {
		t.Fatalf("jobs after archive = %+v", jobs)
	}
	rec, _ := f.stats.FindByThread("thread-1")
	if !rec.Disabled {
		t.Error("disabled flag not persisted")
	}

	f.bridge.HandleThreadUnarchive(ctx, th)
	jobs = f.sched.ListJobs()
	if len(jobs) != 1 || jobs[0].Disabled {
		t.Fatalf("jobs after unarchive = %+v", jobs)
	}
	rec, _ = f.stats.FindByThread("thread-1")
	if rec.Disabled {
		t.Error("disabled flag not cleared")
	}
}

func TestThreadDelete_UnregistersAndCancels(t *testing.T) {
	f := newFixture(t, nil)
	th := f.addThread("thread-1", "weekly summary", "alice", "weekly summary please")
	f.bridge.HandleThreadCreate(context.Background(), th)

	canceled := false
	f.ctl.Register("thread-1", "ref-1", func() { canceled = true })

	f.bridge.HandleThreadDelete(context.Background(), "thread-1")

	if _, ok := f.sched.GetJob("thread-1"); ok {
		t.Error("job still registered after delete")
	}
	if !canceled {
		t.Error("in-flight run not canceled")
	}
}

func TestRecoverAll_ReusesCronIDAndKeepsDisabled(t *testing.T) {
	f := newFixture(t, nil)
	f.addThread("thread-1", "weekly summary", "alice", "weekly summary please")
	f.parser.defs["daily digest please"] = &parser.Definition{
		Schedule: "0 7 * * *", Timezone: "UTC", Channel: "news", Prompt: "digest",
	}
	f.addThread("thread-2", "daily digest", "alice", "daily digest please")

	// thread-1 ran before: its record carries identity and a disabled flag.
	if err := f.stats.Ensure("cron-old", "thread-1"); err != nil {
		t.Fatal(err)
	}
	if err := f.stats.SetDisabled("cron-old", true); err != nil {
		t.Fatal(err)
	}

	if err := f.bridge.RecoverAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	job1, ok := f.sched.GetJob("thread-1")
	if !ok {
		t.Fatal("thread-1 not recovered")
	}
	if job1.CronID != "cron-old" {
		t.Errorf("cron id = %q, want continuity with stored record", job1.CronID)
	}
	jobs := f.sched.ListJobs()
	byID := map[string]bool{}
	for _, j := range jobs {
		byID[j.ID] = j.Disabled
	}
	if !byID["thread-1"] {
		t.Error("previously disabled job should come back disabled")
	}
	if byID["thread-2"] {
		t.Error("fresh job should be enabled")
	}

	job2, _ := f.sched.GetJob("thread-2")
	if job2.CronID == "" || job2.CronID == "cron-old" {
		t.Errorf("thread-2 cron id = %q", job2.CronID)
	}
	// Recovery is silent.
	for _, th := range f.forum.threads {
		if len(th.replies) != 0 {
			t.Errorf("recovery replied in %s: %v", th.id, th.replies)
		}
	}
}

func TestRecoverAll_SkipsUnparsableThreads(t *testing.T) {
	f := newFixture(t, nil)
	f.addThread("thread-1", "chatter", "alice", "not a job")
	f.addThread("thread-2", "weekly summary", "alice", "weekly summary please")

	if err := f.bridge.RecoverAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, ok := f.sched.GetJob("thread-1"); ok {
		t.Error("unparsable thread must not register")
	}
	if _, ok := f.sched.GetJob("thread-2"); !ok {
		t.Error("valid thread should register")
	}
}
