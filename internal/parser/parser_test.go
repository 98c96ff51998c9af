package parser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tempobot/tempo/internal/runner"
)

// fixedRunner returns a canned final text, or an error event.
type fixedRunner struct {
	output string
	err    error
}

func (f *fixedRunner) Run(ctx context.Context, req runner.Request) (<-chan runner.Event, error) {
	ch := make(chan runner.Event, 2)
	if f.err != nil {
		ch <- runner.Event{Kind: runner.EventError, Err: f.err}
	} else {
		ch <- runner.Event{Kind: runner.EventFinal, Text: f.output}
		ch <- runner.Event{Kind: runner.EventDone}
	}
	close(ch)
	return ch, nil
}

func parseWith(t *testing.T, output string) *Definition {
	t.Helper()
	p := New(&fixedRunner{output: output}, "test-model", time.Second)
	return p.Parse(context.Background(), "some task description")
}

func TestParse_WellFormed(t *testing.T) {
	def := parseWith(t, `{"schedule":"0 7 * * 1-5","timezone":"America/Los_Angeles","channel":"general","prompt":"Check the weather and post a summary"}`)
	if def == nil {
		t.Fatal("expected a definition")
	}
	if def.Schedule != "0 7 * * 1-5" {
		t.Errorf("schedule = %q", def.Schedule)
	}
	if def.Timezone != "America/Los_Angeles" {
		t.Errorf("timezone = %q", def.Timezone)
	}
	if def.Channel != "general" {
		t.Errorf("channel = %q", def.Channel)
	}
	if def.Prompt != "Check the weather and post a summary" {
		t.Errorf("prompt = %q", def.Prompt)
	}
}

func TestParse_StripsCodeFence(t *testing.T) {
	def := parseWith(t, "```json\n{\"schedule\":\"0 9 * * *\",\"timezone\":\"\",\"channel\":\"#reports\",\"prompt\":\"Summarize\"}\n```")
	if def == nil {
		t.Fatal("expected a definition")
	}
	if def.Channel != "reports" {
		t.Errorf("channel = %q, want # stripped", def.Channel)
	}
	if def.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC default", def.Timezone)
	}
}

func TestParse_Unusable(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"empty output", ""},
		{"not json", "I could not find a schedule in that text."},
		{"missing field", `{"schedule":"0 9 * * *","timezone":"UTC","channel":"general"}`},
		{"non-string field", `{"schedule":5,"timezone":"UTC","channel":"general","prompt":"x"}`},
		{"blank schedule", `{"schedule":"","timezone":"UTC","channel":"general","prompt":"x"}`},
		{"blank prompt", `{"schedule":"0 9 * * *","timezone":"UTC","channel":"general","prompt":"  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if def := parseWith(t, tt.output); def != nil {
				t.Errorf("expected nil, got %+v", def)
			}
		})
	}
}

func TestParse_ServiceError(t *testing.T) {
	p := New(&fixedRunner{err: errors.New("overloaded")}, "test-model", time.Second)
	if def := p.Parse(context.Background(), "some task"); def != nil {
		t.Errorf("expected nil on service error, got %+v", def)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	p := New(&fixedRunner{output: "{}"}, "test-model", time.Second)
	if def := p.Parse(context.Background(), "   "); def != nil {
		t.Error("expected nil for blank input")
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  ```json\n{\n\"a\":1\n}\n```  ", "{\n\"a\":1\n}"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
