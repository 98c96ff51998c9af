package runstats

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runstate.json")
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("load empty store: %v", err)
	}
	return s, path
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope", "runstate.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("load on missing file should succeed, got %v", err)
	}
	if got := len(s.List()); got != 0 {
		t.Errorf("expected empty store, got %d records", got)
	}
}

func TestStore_MarkSuccessRoundTrip(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.MarkSuccess("cron-1", "thread-1"); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	if err := s.MarkSuccess("cron-1", "thread-1"); err != nil {
		t.Fatalf("mark success: %v", err)
	}

	// Reload from disk and verify the mutators persisted.
	s2 := NewStore(path)
	if err := s2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	r, ok := s2.Get("cron-1")
	if !ok {
		t.Fatal("record missing after reload")
	}
	if r.RunCount != 2 {
		t.Errorf("run count = %d, want 2", r.RunCount)
	}
	if r.LastRunStatus != StatusSuccess {
		t.Errorf("status = %q, want success", r.LastRunStatus)
	}
	if r.ThreadID != "thread-1" {
		t.Errorf("thread id = %q, want thread-1", r.ThreadID)
	}
	if r.LastRunAt == nil {
		t.Error("last run time not set")
	}
}

func TestStore_MarkErrorClearsOnSuccess(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.MarkError("cron-1", "thread-1", "boom"); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	r, _ := s.Get("cron-1")
	if r.LastRunStatus != StatusError || r.LastErrorMessage != "boom" {
		t.Errorf("got status=%q err=%q", r.LastRunStatus, r.LastErrorMessage)
	}

	if err := s.MarkSuccess("cron-1", "thread-1"); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	r, _ = s.Get("cron-1")
	if r.LastRunStatus != StatusSuccess || r.LastErrorMessage != "" {
		t.Errorf("success should clear error, got status=%q err=%q", r.LastRunStatus, r.LastErrorMessage)
	}
	if r.RunCount != 2 {
		t.Errorf("run count = %d, want 2", r.RunCount)
	}
}

func TestStore_NoTempFileLeftBehind(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.MarkSuccess("cron-1", "thread-1"); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("state file missing: %v", err)
	}
}

func TestStore_FindByThread(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Ensure("cron-1", "thread-1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	r, ok := s.FindByThread("thread-1")
	if !ok || r.CronID != "cron-1" {
		t.Errorf("FindByThread = (%+v, %v), want cron-1", r, ok)
	}
	if _, ok := s.FindByThread("thread-2"); ok {
		t.Error("unexpected record for unknown thread")
	}
}

func TestStore_Classification(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.SetClassification("cron-1", "daily", []string{"reporting"}); err != nil {
		t.Fatalf("set classification: %v", err)
	}
	// Empty args must not clobber.
	if err := s.SetClassification("cron-1", "", nil); err != nil {
		t.Fatalf("set classification: %v", err)
	}

	r, _ := s.Get("cron-1")
	if r.Cadence != "daily" {
		t.Errorf("cadence = %q, want daily", r.Cadence)
	}
	if len(r.PurposeTags) != 1 || r.PurposeTags[0] != "reporting" {
		t.Errorf("purpose tags = %v", r.PurposeTags)
	}
}

func TestStore_StatusMessage(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.SetStatusMessage("cron-1", "msg-9", "digest-a"); err != nil {
		t.Fatalf("set status message: %v", err)
	}
	r, _ := s.Get("cron-1")
	if r.StatusMessageID != "msg-9" || r.StatusDigest != "digest-a" {
		t.Errorf("got id=%q digest=%q", r.StatusMessageID, r.StatusDigest)
	}
}
