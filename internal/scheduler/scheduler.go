// Package scheduler owns the set of live time triggers. It decides when jobs
// fire; what happens on a fire (overlap policy included) is the executor's
// business, supplied as a single callback.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bytedance/gg/gmap"

	"github.com/tempobot/tempo/internal/parser"
	"github.com/tempobot/tempo/internal/pkg/logs"
	"github.com/tempobot/tempo/internal/trigger"
)

// FireFunc is invoked (in a trigger goroutine) each time a job's schedule
// comes due.
type FireFunc func(ctx context.Context, job *Job)

type Scheduler struct {
	fire FireFunc
	ctx  context.Context // base context passed to fires

	mu   sync.RWMutex
	jobs map[string]*Job // keyed by thread id
}

// New creates a scheduler. ctx bounds the lifetime of all fire callbacks.
func New(ctx context.Context, fire FireFunc) *Scheduler {
	return &Scheduler{
		fire: fire,
		ctx:  ctx,
		jobs: make(map[string]*Job, 16),
	}
}

// Register constructs a trigger for def and installs the job. A job with the
// same id is replaced in place (its old trigger stopped), which is what makes
// live thread edits safe to re-register. It fails if the schedule does not
// denote a valid recurring trigger.
func (s *Scheduler) Register(id, cronID, guildID, name string, def parser.Definition) (*Job, error) {
	job := &Job{
		ID:      id,
		CronID:  cronID,
		Name:    name,
		GuildID: guildID,
		def:     def,
	}

	trig, err := trigger.NewCron(def.Schedule, def.Timezone, func() { s.onFire(id) })
	if err != nil {
		return nil, fmt.Errorf("register job %s: %w", id, err)
	}
	job.trig = trig

	s.mu.Lock()
	if prev, ok := s.jobs[id]; ok && prev.trig != nil {
		prev.trig.Stop()
	}
	s.jobs[id] = job
	s.mu.Unlock()

	logs.Info("[scheduler] registered job %q (%s) schedule=%q tz=%q next=%v",
		name, id, def.Schedule, def.Timezone, trig.NextRun())
	return job, nil
}

// Unregister stops and removes the job. It reports whether a job existed.
func (s *Scheduler) Unregister(id string) bool {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	if job.trig != nil {
		job.trig.Stop()
	}
	logs.Info("[scheduler] unregistered job %q (%s)", job.Name, id)
	return true
}

// Disable stops the job's trigger but keeps its definition so Enable can
// restart it. Used when a thread is archived.
func (s *Scheduler) Disable(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	if job.trig != nil {
		job.trig.Stop()
		job.trig = nil
	}
	job.disabled = true
	logs.Info("[scheduler] disabled job %q (%s)", job.Name, id)
	return true
}

// Enable rebuilds the trigger from the stored definition.
func (s *Scheduler) Enable(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	if !job.disabled {
		return true
	}

	def := job.Definition()
	trig, err := trigger.NewCron(def.Schedule, def.Timezone, func() { s.onFire(id) })
	if err != nil {
		// The definition was valid at registration; a failure here means the
		// environment changed (e.g. tz database). Leave the job disabled.
		logs.Error("[scheduler] enable job %s: %v", id, err)
		return false
	}
	job.trig = trig
	job.disabled = false
	logs.Info("[scheduler] enabled job %q (%s) next=%v", job.Name, id, trig.NextRun())
	return true
}

// Reload atomically swaps in a new definition and trigger. Returns nil if no
// job with this id exists. On an invalid schedule the existing job is left
// untouched.
func (s *Scheduler) Reload(id string, def parser.Definition) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}

	trig, err := trigger.NewCron(def.Schedule, def.Timezone, func() { s.onFire(id) })
	if err != nil {
		return nil, fmt.Errorf("reload job %s: %w", id, err)
	}

	if job.trig != nil {
		job.trig.Stop()
	}
	job.setDefinition(def)
	job.trig = trig
	job.disabled = false
	logs.Info("[scheduler] reloaded job %q (%s) schedule=%q next=%v",
		job.Name, id, def.Schedule, trig.NextRun())
	return job, nil
}

// GetJob returns the live job for id.
func (s *Scheduler) GetJob(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

// ListJobs returns snapshots of all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []Info {
	s.mu.RLock()
	infos := gmap.ToSlice(s.jobs, func(_ string, j *Job) Info { return j.snapshot() })
	s.mu.RUnlock()

	sort.Slice(infos, func(i, k int) bool { return infos[i].Name < infos[k].Name })
	return infos
}

// StopAll stops every trigger. The job set is cleared; this is shutdown, not
// suspension.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.trig != nil {
			job.trig.Stop()
		}
	}
	n := len(s.jobs)
	s.jobs = make(map[string]*Job)
	logs.Info("[scheduler] stopped %d jobs", n)
}

func (s *Scheduler) onFire(id string) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return // unregistered between arming and firing
	}
	if s.ctx.Err() != nil {
		return
	}

	ctx := logs.SetLogID(s.ctx, logs.NewLogID())
	s.fire(ctx, job)
}
