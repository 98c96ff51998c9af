// Package trigger provides the recurring time trigger the scheduler builds
// jobs on. The interface is deliberately minimal so scheduler logic stays
// testable without real timers.
package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger is a live recurring timer. NextRun returns the zero time once the
// trigger has been stopped or has no further occurrence.
type Trigger interface {
	NextRun() time.Time
	Stop()
}

// cronParser accepts standard 5-field cron expressions
// (minute hour dom month dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks that expr is a parseable 5-field cron expression and tz is
// a known IANA timezone (blank means UTC).
func Validate(expr, tz string) error {
	_, _, err := parseSchedule(expr, tz)
	return err
}

// parseSchedule resolves the timezone first, then parses the expression with
// an explicit CRON_TZ so the schedule computes occurrences in that zone
// rather than the process-local one.
func parseSchedule(expr, tz string) (cron.Schedule, *time.Location, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
	}
	sched, err := cronParser.Parse("CRON_TZ=" + loc.String() + " " + expr)
	if err != nil {
		return nil, nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched, loc, nil
}

// cronTrigger drives a self-rescheduling timer chain off a cron schedule.
type cronTrigger struct {
	sched cron.Schedule
	loc   *time.Location
	fire  func()

	mu      sync.Mutex
	timer   *time.Timer
	next    time.Time
	stopped bool
}

// NewCron builds a trigger from a 5-field cron expression and an IANA
// timezone, invoking fire in its own goroutine at each occurrence. It errors
// on an invalid expression or unknown timezone.
func NewCron(expr, tz string, fire func()) (Trigger, error) {
	sched, loc, err := parseSchedule(expr, tz)
	if err != nil {
		return nil, err
	}

	t := &cronTrigger{sched: sched, loc: loc, fire: fire}
	t.mu.Lock()
	t.schedule(time.Now().In(loc))
	t.mu.Unlock()
	return t, nil
}

// schedule arms the timer for the occurrence after from. Caller holds mu.
func (t *cronTrigger) schedule(from time.Time) {
	t.next = t.sched.Next(from)
	if t.next.IsZero() {
		return
	}
	t.timer = time.AfterFunc(time.Until(t.next), t.onFire)
}

func (t *cronTrigger) onFire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	fired := t.next
	t.schedule(fired.In(t.loc))
	t.mu.Unlock()

	t.fire()
}

func (t *cronTrigger) NextRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return time.Time{}
	}
	return t.next
}

func (t *cronTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.next = time.Time{}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
