package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/tempobot/tempo/internal/bridge"
	"github.com/tempobot/tempo/internal/pkg/logs"
)

// BindBridge wires gateway events to bridge handlers.
//
// Registration is driven by MessageCreate rather than ThreadCreate: a forum
// thread's starter message shares the thread's id but may not be fetchable
// yet when ThreadCreate arrives, while MessageCreate carries the content
// directly.
func (a *Adapter) BindBridge(ctx context.Context, b *bridge.Bridge) {
	a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.ID != m.ChannelID {
			return // not a thread starter
		}
		ectx := eventCtx(ctx)
		th, err := a.fetchThread(ectx, m.ChannelID)
		if err != nil {
			return // plain message whose id happens to equal its channel id
		}
		if th.ParentID() != a.forumID {
			return
		}
		b.HandleThreadCreate(ectx, th)
	})

	a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageUpdate) {
		if m.ID != m.ChannelID {
			return
		}
		ectx := eventCtx(ctx)
		th, err := a.fetchThread(ectx, m.ChannelID)
		if err != nil || th.ParentID() != a.forumID {
			return
		}
		b.HandleStarterEdit(ectx, th, m.Content)
	})

	a.session.AddHandler(func(s *discordgo.Session, e *discordgo.ThreadUpdate) {
		if e.ParentID != a.forumID || e.ThreadMetadata == nil {
			return
		}
		wasArchived := e.BeforeUpdate != nil &&
			e.BeforeUpdate.ThreadMetadata != nil &&
			e.BeforeUpdate.ThreadMetadata.Archived

		ectx := eventCtx(ctx)
		th := wrapThread(s, e.Channel)
		switch {
		case e.ThreadMetadata.Archived && !wasArchived:
			b.HandleThreadArchive(ectx, th)
		case !e.ThreadMetadata.Archived && wasArchived:
			b.HandleThreadUnarchive(ectx, th)
		}
	})

	a.session.AddHandler(func(s *discordgo.Session, e *discordgo.ThreadDelete) {
		if e.ParentID != a.forumID {
			return
		}
		b.HandleThreadDelete(eventCtx(ctx), e.ID)
	})
}

func (a *Adapter) fetchThread(ctx context.Context, id string) (*thread, error) {
	ch, err := a.session.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if !ch.IsThread() {
		return nil, errNotThread
	}
	return wrapThread(a.session, ch), nil
}

var errNotThread = errors.New("channel is not a thread")

func eventCtx(ctx context.Context) context.Context {
	return logs.SetLogID(ctx, logs.NewLogID())
}
