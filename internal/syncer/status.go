package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/tempobot/tempo/internal/cadence"
	"github.com/tempobot/tempo/internal/pkg/textutil"
	"github.com/tempobot/tempo/internal/runstats"
	"github.com/tempobot/tempo/internal/scheduler"
)

// threadNameLimit is the platform's maximum thread name length.
const threadNameLimit = 100

// BuildThreadName renders the display name for a job thread: cadence emoji
// plus job name, truncated with an ellipsis marker when over the platform
// limit.
func BuildThreadName(cad cadence.Cadence, name string) string {
	return textutil.TruncateRunes(cad.Emoji()+" "+name, threadNameLimit, "…")
}

// renderStatus builds the pinned status message content from the job's run
// record.
func renderStatus(job scheduler.Info, rec runstats.Record) string {
	var b strings.Builder
	b.WriteString("**Job status**\n")
	fmt.Fprintf(&b, "Schedule: `%s` (%s)\n", job.Schedule, job.Timezone)

	switch {
	case rec.LastRunAt == nil:
		b.WriteString("Last run: never\n")
	default:
		fmt.Fprintf(&b, "Last run: %s, %s\n",
			rec.LastRunAt.UTC().Format(time.RFC3339), outcomeLabel(rec.LastRunStatus))
	}
	fmt.Fprintf(&b, "Total runs: %d\n", rec.RunCount)

	if rec.Model != "" {
		fmt.Fprintf(&b, "Model: %s\n", rec.Model)
	}
	if rec.ModelOverride != "" {
		fmt.Fprintf(&b, "Model override: %s\n", rec.ModelOverride)
	}
	if rec.Cadence != "" {
		fmt.Fprintf(&b, "Cadence: %s\n", rec.Cadence)
	}
	if len(rec.PurposeTags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(rec.PurposeTags, ", "))
	}
	if rec.Disabled {
		b.WriteString("State: disabled (thread archived)\n")
	}
	if rec.LastErrorMessage != "" {
		fmt.Fprintf(&b, "Last error: %s\n", textutil.Truncate(rec.LastErrorMessage, 500))
	}
	return strings.TrimRight(b.String(), "\n")
}

func outcomeLabel(status string) string {
	switch status {
	case runstats.StatusSuccess:
		return "✅ success"
	case runstats.StatusError:
		return "❌ error"
	default:
		return "no outcome recorded"
	}
}

func statusDigest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
