// Package discord adapts a discordgo session to platform.Client and feeds
// gateway events into the bridge.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/psds-microservice/ticket-bridge/internal/bridge"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/platform"
)

// StateSink receives connection state changes.
type StateSink interface {
	SetState(s bridge.State)
}

// MessageHandler is called for every message the gateway delivers, on a
// discordgo event goroutine.
type MessageHandler func(ctx context.Context, m platform.Message)

type Session struct {
	s         *discordgo.Session
	sink      StateSink
	selfID    atomic.Value // string
	onMessage atomic.Value // MessageHandler
	ctx       context.Context
}

func New(token string, sink StateSink) (*Session, error) {
	if token == "" {
		return nil, errors.New("discord: token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	d := &Session{s: s, sink: sink, ctx: context.Background()}
	d.selfID.Store("")

	s.AddHandler(d.onReady)
	s.AddHandler(d.onResumed)
	s.AddHandler(d.onDisconnect)
	s.AddHandler(d.onMessageCreate)
	return d, nil
}

// OnMessage sets the handler for incoming messages. Set it before Open.
func (d *Session) OnMessage(fn MessageHandler) { d.onMessage.Store(fn) }

// Open connects to the gateway. Handlers receive ctx for their work.
func (d *Session) Open(ctx context.Context) error {
	d.ctx = ctx
	if err := d.s.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	return nil
}

func (d *Session) Close() error {
	return d.s.Close()
}

func (d *Session) SelfID() string {
	return d.selfID.Load().(string)
}

func (d *Session) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		d.selfID.Store(r.User.ID)
		log.Printf("discord: logged in as %s (%s), %d guild(s)", r.User.Username, r.User.ID, len(r.Guilds))
	}
	d.sink.SetState(bridge.StateReady)
}

func (d *Session) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	d.sink.SetState(bridge.StateReady)
}

func (d *Session) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	d.sink.SetState(bridge.StateDisconnected)
}

func (d *Session) onMessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	fn, _ := d.onMessage.Load().(MessageHandler)
	if fn == nil || e.Message == nil {
		return
	}
	fn(d.ctx, toMessage(e.Message, d.SelfID()))
}

func (d *Session) Send(ctx context.Context, channelID, content string) (platform.Message, error) {
	m, err := d.s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Message{}, mapErr(err)
	}
	out := toMessage(m, d.SelfID())
	out.Self = true
	return out, nil
}

func (d *Session) Channel(ctx context.Context, channelID string) (platform.Channel, error) {
	if ch, err := d.s.State.Channel(channelID); err == nil {
		return toChannel(ch), nil
	}
	ch, err := d.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Channel{}, mapErr(err)
	}
	return toChannel(ch), nil
}

// CategoryChannels lists the text channels under categoryID, from the state
// cache when the guild is there.
func (d *Session) CategoryChannels(ctx context.Context, categoryID string) ([]platform.Channel, error) {
	category, err := d.Channel(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	var channels []*discordgo.Channel
	if g, err := d.s.State.Guild(category.GuildID); err == nil && len(g.Channels) > 0 {
		channels = g.Channels
	} else {
		channels, err = d.s.GuildChannels(category.GuildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapErr(err)
		}
	}
	return filterCategory(channels, categoryID), nil
}

func (d *Session) History(ctx context.Context, channelID, beforeID string, limit int) ([]platform.Message, error) {
	msgs, err := d.s.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}
	self := d.SelfID()
	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(m, self))
	}
	return out, nil
}

func (d *Session) RoleName(ctx context.Context, guildID, roleID string) (string, error) {
	if r, err := d.s.State.Role(guildID, roleID); err == nil {
		return r.Name, nil
	}
	roles, err := d.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapErr(err)
	}
	for _, r := range roles {
		if r.ID == roleID {
			return r.Name, nil
		}
	}
	return "", fmt.Errorf("role %s not found in guild %s", roleID, guildID)
}

func filterCategory(channels []*discordgo.Channel, categoryID string) []platform.Channel {
	var out []platform.Channel
	for _, ch := range channels {
		if ch.ParentID == categoryID && ch.Type == discordgo.ChannelTypeGuildText {
			out = append(out, toChannel(ch))
		}
	}
	return out
}

func toChannel(ch *discordgo.Channel) platform.Channel {
	return platform.Channel{ID: ch.ID, Name: ch.Name, GuildID: ch.GuildID, CategoryID: ch.ParentID}
}

// toMessage normalises m. Attachment URLs are appended to the content so
// file-only messages still show up in the dashboard.
func toMessage(m *discordgo.Message, selfID string) platform.Message {
	out := platform.Message{
		ID:           m.ID,
		ChannelID:    m.ChannelID,
		GuildID:      m.GuildID,
		Content:      m.Content,
		Timestamp:    m.Timestamp.UTC(),
		RoleMentions: m.MentionRoles,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorName = m.Author.Username
		out.Self = selfID != "" && m.Author.ID == selfID
	}
	if len(m.Attachments) > 0 {
		parts := make([]string, 0, len(m.Attachments)+1)
		if out.Content != "" {
			parts = append(parts, out.Content)
		}
		for _, a := range m.Attachments {
			parts = append(parts, a.URL)
		}
		out.Content = strings.Join(parts, "\n")
	}
	return out
}

// mapErr translates REST failures into errs sentinels. Unknown errors are
// returned as they are and count as transient.
func mapErr(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	code := 0
	if rest.Message != nil {
		code = rest.Message.Code
	}
	status := 0
	if rest.Response != nil {
		status = rest.Response.StatusCode
	}
	switch {
	case code == discordgo.ErrCodeUnknownChannel || status == http.StatusNotFound:
		return fmt.Errorf("%w: %v", errs.ErrChannelNotFound, err)
	case code == discordgo.ErrCodeMissingAccess || code == discordgo.ErrCodeMissingPermissions || status == http.StatusForbidden:
		return fmt.Errorf("%w: %v", errs.ErrForbidden, err)
	}
	return err
}

var _ platform.Client = (*Session)(nil)
