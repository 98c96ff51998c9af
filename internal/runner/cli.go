package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	maxOutputBytes = 1 << 20 // 1 MiB of raw CLI output
	maxLineBytes   = 256 * 1024

	defaultTimeout = 300 * time.Second
)

// CLIRunner invokes a completion CLI in non-interactive pipe mode and parses
// its line-delimited JSON event stream.
type CLIRunner struct {
	Command string // binary name or path, e.g. "claude"
}

var _ Runner = (*CLIRunner)(nil)

func NewCLIRunner(command string) *CLIRunner {
	return &CLIRunner{Command: command}
}

// Available reports whether the configured binary is on PATH.
func (r *CLIRunner) Available() bool {
	_, err := exec.LookPath(r.Command)
	return err == nil
}

// streamLine is one line of the CLI's --output-format stream-json output.
type streamLine struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

func (r *CLIRunner) buildArgs(req Request) []string {
	args := []string{"-p", req.Prompt, "--output-format", "stream-json"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if len(req.ToolsAllowed) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.ToolsAllowed, ","))
	}
	return args
}

// Run starts the CLI and translates its stdout into events. Every invocation
// carries a timeout; the stream ends with exactly one terminal event.
func (r *CLIRunner) Run(ctx context.Context, req Request) (<-chan Event, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	cmd := exec.CommandContext(ctx, r.Command, r.buildArgs(req)...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s stdout pipe: %w", r.Command, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%s start: %w", r.Command, err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer cancel()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

		read := 0
		failed := false
	scan:
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			read += len(line)
			if read > maxOutputBytes {
				break
			}

			var ev streamLine
			if err := sonic.UnmarshalString(line, &ev); err != nil {
				// Non-JSON noise on stdout is tolerated and skipped.
				continue
			}
			var out Event
			switch ev.Type {
			case string(EventDelta):
				out = Event{Kind: EventDelta, Text: ev.Text}
			case string(EventFinal):
				out = Event{Kind: EventFinal, Text: ev.Text}
			case string(EventError):
				failed = true
				out = Event{Kind: EventError, Err: errors.New(ev.Error)}
			case string(EventDone):
				// Terminal; emitted below after the process exits.
				continue
			default:
				continue
			}
			// Stop streaming once the run deadline passes; the process is
			// being killed and Wait below reaps it.
			select {
			case events <- out:
			case <-ctx.Done():
				break scan
			}
		}

		waitErr := cmd.Wait()
		if failed {
			return
		}
		if ctx.Err() != nil {
			events <- Event{Kind: EventError, Err: fmt.Errorf("%s timed out: %w", r.Command, ctx.Err())}
			return
		}
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				events <- Event{Kind: EventError, Err: fmt.Errorf("%s exited %d: %s",
					r.Command, exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))}
			} else {
				events <- Event{Kind: EventError, Err: fmt.Errorf("%s wait: %w", r.Command, waitErr)}
			}
			return
		}
		events <- Event{Kind: EventDone}
	}()

	return events, nil
}
