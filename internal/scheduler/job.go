package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tempobot/tempo/internal/parser"
	"github.com/tempobot/tempo/internal/trigger"
)

// Job is the volatile in-memory representation of a registered task. Its ID
// is the owning forum thread id; the CronID keys the durable run history and
// survives thread recreation. Jobs are lost on restart and rebuilt by the
// bridge's recovery walk.
type Job struct {
	ID      string
	CronID  string
	Name    string
	GuildID string

	// def has its own lock: the executor reads it outside the scheduler's
	// mutex while Reload may swap it.
	defMu sync.RWMutex
	def   parser.Definition

	// trig and disabled are guarded by the owning Scheduler's mutex.
	trig     trigger.Trigger
	disabled bool

	// running is the executor-owned overlap flag. The scheduler never reads
	// it for firing decisions: overlap policy belongs to the executor.
	running atomic.Bool
}

// Definition returns the job's current definition.
func (j *Job) Definition() parser.Definition {
	j.defMu.RLock()
	defer j.defMu.RUnlock()
	return j.def
}

func (j *Job) setDefinition(def parser.Definition) {
	j.defMu.Lock()
	j.def = def
	j.defMu.Unlock()
}

// TryBeginRun atomically claims the overlap flag. It returns false when a
// previous run is still in progress.
func (j *Job) TryBeginRun() bool {
	return j.running.CompareAndSwap(false, true)
}

// EndRun releases the overlap flag.
func (j *Job) EndRun() {
	j.running.Store(false)
}

// Running reports whether a run is currently in progress.
func (j *Job) Running() bool {
	return j.running.Load()
}

// Info is a read-only snapshot of a job for listings and the ops API.
type Info struct {
	ID       string    `json:"id"`
	CronID   string    `json:"cron_id"`
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Timezone string    `json:"timezone"`
	Channel  string    `json:"channel"`
	NextRun  time.Time `json:"next_run"`
	Disabled bool      `json:"disabled"`
	Running  bool      `json:"running"`
}

func (j *Job) snapshot() Info {
	def := j.Definition()
	info := Info{
		ID:       j.ID,
		CronID:   j.CronID,
		Name:     j.Name,
		Schedule: def.Schedule,
		Timezone: def.Timezone,
		Channel:  def.Channel,
		Disabled: j.disabled,
		Running:  j.running.Load(),
	}
	if j.trig != nil {
		info.NextRun = j.trig.NextRun()
	}
	return info
}
