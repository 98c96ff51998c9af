// Package discord adapts the Discord gateway and REST API to the forum
// interfaces the core works against. All SDK types stay inside this package.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tempobot/tempo/internal/forum"
	"github.com/tempobot/tempo/internal/pkg/logs"
)

type Adapter struct {
	session   *discordgo.Session
	guildID   string
	forumID   string
	botUserID string
}

func New(token, guildID, forumID string) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	return &Adapter{
		session: session,
		guildID: guildID,
		forumID: forumID,
	}, nil
}

// Open connects the gateway and resolves the bot's own user id, which the
// bridge needs for authorization checks.
func (a *Adapter) Open(ctx context.Context) error {
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	me, err := a.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		a.session.Close()
		return fmt.Errorf("resolve bot user: %w", err)
	}
	a.botUserID = me.ID
	logs.CtxInfo(ctx, "[discord] connected as %s (%s)", me.Username, me.ID)
	return nil
}

func (a *Adapter) Close() error {
	return a.session.Close()
}

// BotUserID is available after the Ready event.
func (a *Adapter) BotUserID() string { return a.botUserID }

// Forum returns the watched forum channel.
func (a *Adapter) Forum() forum.Forum {
	return &forumChannel{session: a.session, guildID: a.guildID, id: a.forumID}
}

// Resolver resolves result channels by name or id.
func (a *Adapter) Resolver() forum.ChannelResolver {
	return &resolver{session: a.session}
}

// Notifier posts operator notifications to channelID; nil when unset.
func (a *Adapter) Notifier(channelID string) forum.Notifier {
	if channelID == "" {
		return nil
	}
	return &notifier{session: a.session, channelID: channelID}
}

// --- forum.Forum ---

type forumChannel struct {
	session *discordgo.Session
	guildID string
	id      string
}

func (f *forumChannel) ID() string { return f.id }

func (f *forumChannel) ActiveThreads(ctx context.Context) ([]forum.Thread, error) {
	list, err := f.session.GuildThreadsActive(f.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list active threads: %w", err)
	}

	var out []forum.Thread
	for _, ch := range list.Threads {
		if ch.ParentID != f.id {
			continue
		}
		out = append(out, &thread{session: f.session, ch: ch})
	}
	return out, nil
}

func (f *forumChannel) Thread(ctx context.Context, id string) (forum.Thread, error) {
	ch, err := f.session.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", id, err)
	}
	if !ch.IsThread() {
		return nil, fmt.Errorf("channel %s is not a thread", id)
	}
	return &thread{session: f.session, ch: ch}, nil
}

// --- forum.Thread ---

type thread struct {
	session *discordgo.Session
	ch      *discordgo.Channel
}

func wrapThread(s *discordgo.Session, ch *discordgo.Channel) *thread {
	return &thread{session: s, ch: ch}
}

func (t *thread) ID() string       { return t.ch.ID }
func (t *thread) Name() string     { return t.ch.Name }
func (t *thread) ParentID() string { return t.ch.ParentID }
func (t *thread) OwnerID() string  { return t.ch.OwnerID }

func (t *thread) Archived() bool {
	return t.ch.ThreadMetadata != nil && t.ch.ThreadMetadata.Archived
}

func (t *thread) AppliedTags() []string {
	return t.ch.AppliedTags
}

// StarterMessage fetches the thread's first message. In a forum thread the
// starter message shares the thread's id.
func (t *thread) StarterMessage(ctx context.Context) (*forum.Message, error) {
	msg, err := t.session.ChannelMessage(t.ch.ID, t.ch.ID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch starter message of %s: %w", t.ch.ID, err)
	}
	return convertMessage(msg), nil
}

func (t *thread) Send(ctx context.Context, content string) (string, error) {
	msg, err := t.session.ChannelMessageSend(t.ch.ID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send to thread %s: %w", t.ch.ID, err)
	}
	return msg.ID, nil
}

func (t *thread) EditMessage(ctx context.Context, messageID, content string) error {
	_, err := t.session.ChannelMessageEdit(t.ch.ID, messageID, content, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("edit message %s in %s: %w", messageID, t.ch.ID, err)
	}
	return nil
}

func (t *thread) PinMessage(ctx context.Context, messageID string) error {
	if err := t.session.ChannelMessagePin(t.ch.ID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("pin message %s in %s: %w", messageID, t.ch.ID, err)
	}
	return nil
}

func (t *thread) MessageExists(ctx context.Context, messageID string) bool {
	_, err := t.session.ChannelMessage(t.ch.ID, messageID, discordgo.WithContext(ctx))
	return err == nil
}

func (t *thread) SetName(ctx context.Context, name string) error {
	ch, err := t.session.ChannelEditComplex(t.ch.ID, &discordgo.ChannelEdit{
		Name: name,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("rename thread %s: %w", t.ch.ID, err)
	}
	t.ch = ch
	return nil
}

func (t *thread) ApplyTags(ctx context.Context, tagIDs []string) error {
	ch, err := t.session.ChannelEditComplex(t.ch.ID, &discordgo.ChannelEdit{
		AppliedTags: &tagIDs,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("apply tags to thread %s: %w", t.ch.ID, err)
	}
	t.ch = ch
	return nil
}

func (t *thread) SetArchived(ctx context.Context, archived bool) error {
	ch, err := t.session.ChannelEditComplex(t.ch.ID, &discordgo.ChannelEdit{
		Archived: &archived,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("set archived=%v on thread %s: %w", archived, t.ch.ID, err)
	}
	t.ch = ch
	return nil
}

func convertMessage(m *discordgo.Message) *forum.Message {
	out := &forum.Message{ID: m.ID, Content: m.Content}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.Bot = m.Author.Bot
	}
	return out
}

// --- forum.Channel / forum.ChannelResolver ---

type textChannel struct {
	session *discordgo.Session
	id      string
}

func (c *textChannel) ID() string { return c.id }

func (c *textChannel) Send(ctx context.Context, content string) error {
	_, err := c.session.ChannelMessageSend(c.id, content, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send to channel %s: %w", c.id, err)
	}
	return nil
}

type resolver struct {
	session *discordgo.Session
}

// Resolve accepts either a channel id or a channel name. Names are matched
// case-insensitively against the guild's text channels.
func (r *resolver) Resolve(ctx context.Context, guildID, nameOrID string) (forum.Channel, error) {
	if ch, err := r.session.Channel(nameOrID, discordgo.WithContext(ctx)); err == nil && ch.GuildID == guildID {
		return &textChannel{session: r.session, id: ch.ID}, nil
	}

	channels, err := r.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list guild channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		if strings.EqualFold(ch.Name, nameOrID) {
			return &textChannel{session: r.session, id: ch.ID}, nil
		}
	}
	return nil, fmt.Errorf("no text channel named %q in guild %s", nameOrID, guildID)
}

// --- forum.Notifier ---

type notifier struct {
	session   *discordgo.Session
	channelID string
}

func (n *notifier) Notify(ctx context.Context, content string) {
	if _, err := n.session.ChannelMessageSend(n.channelID, content, discordgo.WithContext(ctx)); err != nil {
		logs.CtxError(ctx, "[discord] operator notification: %v", err)
	}
}
