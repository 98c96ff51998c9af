// Package parser turns free-text task descriptions into structured job
// definitions via the completion service.
package parser

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/tempobot/tempo/internal/pkg/logs"
	"github.com/tempobot/tempo/internal/pkg/metrics"
	"github.com/tempobot/tempo/internal/runner"
)

// Definition is a fully structured job: what to run, when, and where the
// output goes.
type Definition struct {
	Schedule string `json:"schedule"` // 5-field cron expression
	Timezone string `json:"timezone"` // IANA name, UTC when blank
	Channel  string `json:"channel"`  // target channel name or id
	Prompt   string `json:"prompt"`   // instruction text for each run
}

const extractionInstruction = `Extract a scheduled task definition from the text below.
Respond with ONLY a JSON object, no prose, with exactly these string fields:
  "schedule": a standard 5-field cron expression (minute hour day-of-month month day-of-week)
  "timezone": an IANA timezone name such as "America/Los_Angeles", or "" if none is given
  "channel":  the channel the results should be posted to, or "" if none is given
  "prompt":   the instruction to execute on each run, rewritten as a direct imperative

Text:
`

// Parser extracts definitions using a fixed instruction against the
// completion service.
type Parser struct {
	runner  runner.Runner
	model   string
	timeout time.Duration
}

func New(r runner.Runner, model string, timeout time.Duration) *Parser {
	return &Parser{runner: r, model: model, timeout: timeout}
}

// Parse extracts a definition from free text. It returns nil on anything it
// cannot use: empty service output, invalid JSON, missing fields, or a
// service error. It never panics and never returns an error; unparseable
// input is an expected outcome, not a fault.
//
// Only structure is validated here. Whether the cron expression denotes a
// real recurring trigger is checked at registration.
func (p *Parser) Parse(ctx context.Context, text string) *Definition {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	out, err := runner.Collect(ctx, p.runner, runner.Request{
		Prompt:  extractionInstruction + text,
		Model:   p.model,
		Timeout: p.timeout,
	})
	if err != nil {
		logs.CtxWarn(ctx, "[parser] completion service error: %v", err)
		metrics.ParseFailures.Inc()
		return nil
	}

	def := decode(out)
	if def == nil {
		logs.CtxInfo(ctx, "[parser] unusable extraction output (%d bytes)", len(out))
		metrics.ParseFailures.Inc()
	}
	return def
}

// decode validates the raw service output into a Definition, or nil.
func decode(out string) *Definition {
	out = stripFences(out)
	if out == "" {
		return nil
	}

	// Require all four fields to be present as strings: a partial object
	// means the extraction failed, not that defaults apply.
	var fields map[string]any
	if err := sonic.UnmarshalString(out, &fields); err != nil {
		return nil
	}
	def := &Definition{}
	for name, target := range map[string]*string{
		"schedule": &def.Schedule,
		"timezone": &def.Timezone,
		"channel":  &def.Channel,
		"prompt":   &def.Prompt,
	} {
		v, ok := fields[name]
		if !ok {
			return nil
		}
		s, ok := v.(string)
		if !ok {
			return nil
		}
		*target = s
	}

	def.Schedule = strings.TrimSpace(def.Schedule)
	def.Prompt = strings.TrimSpace(def.Prompt)
	def.Channel = strings.TrimPrefix(strings.TrimSpace(def.Channel), "#")
	def.Timezone = strings.TrimSpace(def.Timezone)
	if def.Timezone == "" {
		def.Timezone = "UTC"
	}

	if def.Schedule == "" || def.Channel == "" || def.Prompt == "" {
		return nil
	}
	return def
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "" etc.).
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
