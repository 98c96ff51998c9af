// Package cadence maps cron expressions to a coarse run-frequency label used
// for thread tagging and naming.
package cadence

import "strings"

type Cadence string

const (
	Frequent Cadence = "frequent"
	Hourly   Cadence = "hourly"
	Daily    Cadence = "daily"
	Weekly   Cadence = "weekly"
	Monthly  Cadence = "monthly"
)

// Classify derives a cadence label from a 5-field cron expression. It never
// fails: malformed input classifies as Frequent, since expression validity is
// enforced at job registration, not here.
func Classify(expr string) Cadence {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return Frequent
	}

	minute, hour, dom, _, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	switch {
	case pinned(dom):
		return Monthly
	case pinned(dow):
		return Weekly
	case pinned(hour):
		return Daily
	case pinned(minute):
		return Hourly
	default:
		return Frequent
	}
}

// pinned reports whether a cron field restricts its unit to specific values,
// as opposed to a wildcard or step over the full range.
func pinned(field string) bool {
	return field != "*" && !strings.HasPrefix(field, "*/")
}

// Emoji returns the marker prefixed to thread names for this cadence.
func (c Cadence) Emoji() string {
	switch c {
	case Hourly:
		return "⏱️" // stopwatch
	case Daily:
		return "☀️" // sun
	case Weekly:
		return "\U0001f4c6" // tear-off calendar
	case Monthly:
		return "\U0001f5d3️" // spiral calendar
	default:
		return "⚡" // high voltage
	}
}

func (c Cadence) String() string { return string(c) }

// Known reports whether s is one of the defined cadence labels.
func Known(s string) bool {
	switch Cadence(s) {
	case Frequent, Hourly, Daily, Weekly, Monthly:
		return true
	}
	return false
}
