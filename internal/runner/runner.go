// Package runner is the client for the external completion service. The
// service is a black box here: it takes an instruction prompt and yields a
// stream of text events.
package runner

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Request describes a single non-interactive completion invocation.
type Request struct {
	Prompt       string
	Model        string
	WorkingDir   string
	Timeout      time.Duration
	ToolsAllowed []string
}

// EventKind discriminates stream events.
type EventKind string

const (
	EventDelta EventKind = "text_delta"
	EventFinal EventKind = "text_final"
	EventError EventKind = "error"
	EventDone  EventKind = "done"
)

// Event is one element of a completion stream.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Runner issues completion requests. The returned channel is closed after a
// terminal event (error or done).
type Runner interface {
	Run(ctx context.Context, req Request) (<-chan Event, error)
}

// ErrRunFailed wraps terminal stream errors surfaced by Collect.
var ErrRunFailed = errors.New("completion run failed")

// Collect drains a stream and returns the final text: a text_final event is
// preferred, otherwise the concatenation of text_delta events. An error event
// is a terminal failure for the whole call.
func Collect(ctx context.Context, r Runner, req Request) (string, error) {
	events, err := r.Run(ctx, req)
	if err != nil {
		return "", err
	}

	var deltas strings.Builder
	final := ""
	haveFinal := false

	for {
		select {
		case <-ctx.Done():
			go drain(events)
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if haveFinal {
					return final, nil
				}
				return deltas.String(), nil
			}
			switch ev.Kind {
			case EventDelta:
				deltas.WriteString(ev.Text)
			case EventFinal:
				final = ev.Text
				haveFinal = true
			case EventError:
				go drain(events)
				if ev.Err != nil {
					return "", errors.Join(ErrRunFailed, ev.Err)
				}
				return "", ErrRunFailed
			case EventDone:
				if haveFinal {
					return final, nil
				}
				return deltas.String(), nil
			}
		}
	}
}

// drain consumes a stream to completion after the caller has stopped
// listening, so the producer never blocks on an abandoned channel and can
// reach its own cleanup.
func drain(events <-chan Event) {
	for range events {
	}
}
