// Package runstats persists per-job run history and classification metadata.
// Records are the only state that survives a process restart.
package runstats

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/gg/gmap"
	"github.com/bytedance/sonic"
)

// Run outcome labels stored in Record.LastRunStatus.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Record is the durable history of one job, keyed by its cron ID. The cron ID
// outlives the owning thread: recreating a thread for the same task keeps its
// history.
type Record struct {
	CronID           string     `json:"cron_id"`
	ThreadID         string     `json:"thread_id"`
	RunCount         int        `json:"run_count"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus    string     `json:"last_run_status,omitempty"`
	LastErrorMessage string     `json:"last_error_message,omitempty"`
	Cadence          string     `json:"cadence,omitempty"`
	PurposeTags      []string   `json:"purpose_tags,omitempty"`
	Model            string     `json:"model,omitempty"`
	ModelOverride    string     `json:"model_override,omitempty"`
	Disabled         bool       `json:"disabled,omitempty"`
	StatusMessageID  string     `json:"status_message_id,omitempty"`
	// StatusDigest caches the last rendered status message so the
	// synchronizer can skip edits when nothing changed.
	StatusDigest string `json:"status_digest,omitempty"`
}

// Store provides thread-safe persistence of run records to a JSON file.
// Every mutator persists immediately; writes go through a temp file and
// rename so a crash mid-write never leaves a torn file.
type Store struct {
	path    string
	records map[string]*Record // keyed by CronID
	mu      sync.RWMutex
}

func NewStore(path string) *Store {
	return &Store{
		path:    path,
		records: make(map[string]*Record),
	}
}

// Load reads persisted records from disk. Safe to call on a missing file.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // first run
		}
		return fmt.Errorf("read run state: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var records []*Record
	if err := sonic.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("unmarshal run state: %w", err)
	}

	s.records = make(map[string]*Record, len(records))
	for _, r := range records {
		if r.CronID == "" {
			continue
		}
		s.records[r.CronID] = r
	}
	return nil
}

// Save writes all records to disk atomically. Callers normally do not need
// this; mutators persist on their own.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	records := gmap.Values(s.records)

	data, err := sonic.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create run state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp run state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename run state: %w", err)
	}
	return nil
}

// Get returns a copy of the record for cronID.
func (s *Store) Get(cronID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[cronID]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// FindByThread returns the record owning threadID, if any.
func (s *Store) FindByThread(threadID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ThreadID == threadID {
			return *r, true
		}
	}
	return Record{}, false
}

// List returns copies of all records.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gmap.ToSlice(s.records, func(_ string, r *Record) Record { return *r })
}

// Ensure creates the record for cronID if absent and binds it to threadID.
func (s *Store) Ensure(cronID, threadID string) error {
	return s.mutate(cronID, threadID, func(*Record) {})
}

// MarkSuccess records a completed run.
func (s *Store) MarkSuccess(cronID, threadID string) error {
	now := time.Now()
	return s.mutate(cronID, threadID, func(r *Record) {
		r.RunCount++
		r.LastRunAt = &now
		r.LastRunStatus = StatusSuccess
		r.LastErrorMessage = ""
	})
}

// MarkError records a failed run with its error message.
func (s *Store) MarkError(cronID, threadID, msg string) error {
	now := time.Now()
	return s.mutate(cronID, threadID, func(r *Record) {
		r.RunCount++
		r.LastRunAt = &now
		r.LastRunStatus = StatusError
		r.LastErrorMessage = msg
	})
}

// SetClassification stores derived cadence and purpose tags. Empty arguments
// leave the corresponding field untouched.
func (s *Store) SetClassification(cronID, cad string, purposeTags []string) error {
	return s.mutate(cronID, "", func(r *Record) {
		if cad != "" {
			r.Cadence = cad
		}
		if len(purposeTags) > 0 {
			r.PurposeTags = purposeTags
		}
	})
}

// SetModel stores the classified model for a job.
func (s *Store) SetModel(cronID, model string) error {
	return s.mutate(cronID, "", func(r *Record) { r.Model = model })
}

// SetDisabled records whether the job's trigger is stopped.
func (s *Store) SetDisabled(cronID string, disabled bool) error {
	return s.mutate(cronID, "", func(r *Record) { r.Disabled = disabled })
}

// SetStatusMessage records the pinned status message id and the digest of its
// rendered content.
func (s *Store) SetStatusMessage(cronID, messageID, digest string) error {
	return s.mutate(cronID, "", func(r *Record) {
		r.StatusMessageID = messageID
		r.StatusDigest = digest
	})
}

func (s *Store) mutate(cronID, threadID string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[cronID]
	if !ok {
		r = &Record{CronID: cronID}
		s.records[cronID] = r
	}
	if threadID != "" {
		r.ThreadID = threadID
	}
	fn(r)
	return s.saveLocked()
}
