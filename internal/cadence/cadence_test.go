package cadence

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		expr string
		want Cadence
	}{
		{"* * * * *", Frequent},
		{"*/5 * * * *", Frequent},
		{"0 * * * *", Hourly},
		{"15 * * * *", Hourly},
		{"0 9 * * *", Daily},
		{"30 6,18 * * *", Daily},
		{"0 7 * * 1-5", Weekly},
		{"0 9 * * 1", Weekly},
		{"0 0 1 * *", Monthly},
		{"0 8 15 * *", Monthly},
		// Monthly wins when both dom and dow are pinned.
		{"0 8 1 * 1", Monthly},
	}

	for _, tt := range tests {
		if got := Classify(tt.expr); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.expr, got, tt.want)
		}
	}
}

func TestClassify_Malformed(t *testing.T) {
	for _, expr := range []string{"", "0 9 * *", "not a cron", "0 9 * * * *"} {
		if got := Classify(expr); got != Frequent {
			t.Errorf("Classify(%q) = %s, want frequent", expr, got)
		}
	}
}

func TestEmoji_Distinct(t *testing.T) {
	seen := make(map[string]Cadence)
	for _, c := range []Cadence{Frequent, Hourly, Daily, Weekly, Monthly} {
		e := c.Emoji()
		if e == "" {
			t.Errorf("%s has empty emoji", c)
		}
		if prev, dup := seen[e]; dup {
			t.Errorf("%s and %s share emoji %q", prev, c, e)
		}
		seen[e] = c
	}
}

func TestKnown(t *testing.T) {
	if !Known("daily") {
		t.Error("daily should be known")
	}
	if Known("yearly") {
		t.Error("yearly should not be known")
	}
}
