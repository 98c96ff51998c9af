package trigger

import (
	"testing"
	"time"
)

func TestNewCron_Invalid(t *testing.T) {
	if _, err := NewCron("not a cron", "", func() {}); err == nil {
		t.Error("expected error for invalid expression")
	}
	if _, err := NewCron("0 9 * * *", "Mars/Olympus", func() {}); err == nil {
		t.Error("expected error for unknown timezone")
	}
	// 6-field (seconds) expressions are rejected: the parser is 5-field only.
	if _, err := NewCron("0 0 9 * * *", "", func() {}); err == nil {
		t.Error("expected error for 6-field expression")
	}
}

func TestNewCron_NextRunInFuture(t *testing.T) {
	before := time.Now()
	tr, err := NewCron("0 9 * * *", "America/Los_Angeles", func() {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tr.Stop()

	next := tr.NextRun()
	if !next.After(before) {
		t.Errorf("next run %v not after registration time %v", next, before)
	}
	if next.Sub(before) > 25*time.Hour {
		t.Errorf("daily schedule should fire within a day, got %v", next.Sub(before))
	}
}

func TestTrigger_StopClearsNextRun(t *testing.T) {
	tr, err := NewCron("*/5 * * * *", "", func() {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr.Stop()
	if !tr.NextRun().IsZero() {
		t.Error("NextRun after Stop should be zero")
	}
	// Stop is idempotent.
	tr.Stop()
}

func TestValidate(t *testing.T) {
	tests := []struct {
		expr, tz string
		wantErr  bool
	}{
		{"0 7 * * 1-5", "America/Los_Angeles", false},
		{"*/10 * * * *", "", false},
		{"61 * * * *", "", true},
		{"0 9 * * *", "Nowhere/Nothing", true},
	}
	for _, tt := range tests {
		err := Validate(tt.expr, tt.tz)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q, %q) error = %v, wantErr %v", tt.expr, tt.tz, err, tt.wantErr)
		}
	}
}
