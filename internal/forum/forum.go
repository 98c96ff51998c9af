// Package forum defines the narrow capability interfaces the core uses to
// talk to the forum platform. Adapters (internal/adapter/discord) implement
// them; nothing outside the adapter touches SDK types.
package forum

import (
	"context"

	"github.com/tempobot/tempo/internal/pkg/logs"
)

// Message is a platform message reduced to what the core needs.
type Message struct {
	ID       string
	AuthorID string
	Bot      bool
	Content  string
}

// Thread is one forum thread: the control surface for a single job.
type Thread interface {
	ID() string
	Name() string
	ParentID() string
	Archived() bool
	OwnerID() string

	// StarterMessage fetches the thread's first message, the sole source of
	// truth for the job definition.
	StarterMessage(ctx context.Context) (*Message, error)

	Send(ctx context.Context, content string) (messageID string, err error)
	EditMessage(ctx context.Context, messageID, content string) error
	PinMessage(ctx context.Context, messageID string) error
	// MessageExists reports whether messageID still resolves in this thread.
	MessageExists(ctx context.Context, messageID string) bool

	SetName(ctx context.Context, name string) error
	AppliedTags() []string
	ApplyTags(ctx context.Context, tagIDs []string) error
	SetArchived(ctx context.Context, archived bool) error
}

// Forum is the designated forum channel whose threads define jobs.
type Forum interface {
	ID() string
	ActiveThreads(ctx context.Context) ([]Thread, error)
	Thread(ctx context.Context, id string) (Thread, error)
}

// Channel is a plain text channel results are posted to.
type Channel interface {
	ID() string
	Send(ctx context.Context, content string) error
}

// ChannelResolver resolves a channel reference (name or id, "#" already
// stripped) within a guild.
type ChannelResolver interface {
	Resolve(ctx context.Context, guildID, nameOrID string) (Channel, error)
}

// Notifier delivers operator-facing error notifications. It is optional:
// implementations and callers must both tolerate absence.
type Notifier interface {
	Notify(ctx context.Context, content string)
}

// Notify sends through n when present, falling back to a log line so the
// absence of an operator channel affects observability only.
func Notify(ctx context.Context, n Notifier, content string) {
	if n == nil {
		logs.CtxWarn(ctx, "[operator] %s", content)
		return
	}
	n.Notify(ctx, content)
}
