package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptRunner replays a fixed event sequence.
type scriptRunner struct {
	events []Event
}

func (s *scriptRunner) Run(ctx context.Context, req Request) (<-chan Event, error) {
	ch := make(chan Event, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestCollect_PrefersFinal(t *testing.T) {
	r := &scriptRunner{events: []Event{
		{Kind: EventDelta, Text: "par"},
		{Kind: EventDelta, Text: "tial"},
		{Kind: EventFinal, Text: "complete answer"},
		{Kind: EventDone},
	}}

	got, err := Collect(context.Background(), r, Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "complete answer" {
		t.Errorf("got %q, want final text", got)
	}
}

func TestCollect_ConcatenatesDeltas(t *testing.T) {
	r := &scriptRunner{events: []Event{
		{Kind: EventDelta, Text: "hello "},
		{Kind: EventDelta, Text: "world"},
		{Kind: EventDone},
	}}

	got, err := Collect(context.Background(), r, Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
}

func TestCollect_ErrorEventIsTerminal(t *testing.T) {
	r := &scriptRunner{events: []Event{
		{Kind: EventDelta, Text: "ignored"},
		{Kind: EventError, Err: errors.New("model overloaded")},
	}}

	_, err := Collect(context.Background(), r, Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrRunFailed) {
		t.Errorf("error %v should wrap ErrRunFailed", err)
	}
}

// chattyRunner emits an error event and then keeps streaming text well past
// the channel buffer, like a CLI that prints a failure line but does not stop
// talking.
type chattyRunner struct {
	deltas   int
	finished chan struct{}
}

func (c *chattyRunner) Run(ctx context.Context, req Request) (<-chan Event, error) {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer close(c.finished)
		ch <- Event{Kind: EventError, Err: errors.New("tool crashed")}
		for i := 0; i < c.deltas; i++ {
			ch <- Event{Kind: EventDelta, Text: "noise"}
		}
	}()
	return ch, nil
}

func TestCollect_ErrorEventDoesNotStrandProducer(t *testing.T) {
	r := &chattyRunner{deltas: 200, finished: make(chan struct{})}

	_, err := Collect(context.Background(), r, Request{Prompt: "x"})
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("error %v should wrap ErrRunFailed", err)
	}

	// The producer must be able to finish its stream and clean up even
	// though the collector returned on the error event.
	select {
	case <-r.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked sending after collect returned")
	}
}

func TestCollect_CanceledContextDoesNotStrandProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the cancellation or the error event ends the collect; both
	// must leave the producer free to finish.
	r := &chattyRunner{deltas: 200, finished: make(chan struct{})}
	if _, err := Collect(ctx, r, Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error from canceled collect")
	}

	select {
	case <-r.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked sending after cancellation")
	}
}

func TestCollect_EmptyStream(t *testing.T) {
	r := &scriptRunner{events: []Event{{Kind: EventDone}}}

	got, err := Collect(context.Background(), r, Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty output", got)
	}
}

func TestCLIRunner_BuildArgs(t *testing.T) {
	r := NewCLIRunner("claude")
	args := r.buildArgs(Request{
		Prompt:       "do the thing",
		Model:        "sonnet",
		ToolsAllowed: []string{"Bash", "WebFetch"},
	})

	want := []string{"-p", "do the thing", "--output-format", "stream-json",
		"--model", "sonnet", "--allowedTools", "Bash,WebFetch"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}
