package discord

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/psds-microservice/ticket-bridge/internal/bridge"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restErr(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "nope"},
	}
}

func TestMapErr(t *testing.T) {
	assert.ErrorIs(t, mapErr(restErr(404, discordgo.ErrCodeUnknownChannel)), errs.ErrChannelNotFound)
	assert.ErrorIs(t, mapErr(restErr(404, 0)), errs.ErrChannelNotFound)
	assert.ErrorIs(t, mapErr(restErr(403, discordgo.ErrCodeMissingAccess)), errs.ErrForbidden)
	assert.ErrorIs(t, mapErr(restErr(403, discordgo.ErrCodeMissingPermissions)), errs.ErrForbidden)

	transient := mapErr(restErr(502, 0))
	assert.False(t, errs.Permanent(transient))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, mapErr(plain))
}

func TestToMessage(t *testing.T) {
	ts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	m := &discordgo.Message{
		ID:           "42",
		ChannelID:    "100",
		GuildID:      "1",
		Content:      "see attached",
		Timestamp:    ts,
		Author:       &discordgo.User{ID: "555", Username: "customer"},
		MentionRoles: []string{"77"},
		Attachments:  []*discordgo.MessageAttachment{{URL: "https://cdn.example/a.png"}},
	}

	got := toMessage(m, "999")
	assert.Equal(t, "42", got.ID)
	assert.Equal(t, "customer", got.AuthorName)
	assert.Equal(t, "see attached\nhttps://cdn.example/a.png", got.Content)
	assert.Equal(t, time.UTC, got.Timestamp.Location())
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, []string{"77"}, got.RoleMentions)
	assert.False(t, got.Self)

	assert.True(t, toMessage(m, "555").Self)
	assert.False(t, toMessage(m, "").Self, "unknown self id never matches")
}

func TestFilterCategory(t *testing.T) {
	channels := []*discordgo.Channel{
		{ID: "10", Name: "Tickets", Type: discordgo.ChannelTypeGuildCategory},
		{ID: "100", Name: "ticket-1", ParentID: "10", GuildID: "1", Type: discordgo.ChannelTypeGuildText},
		{ID: "101", Name: "voice", ParentID: "10", Type: discordgo.ChannelTypeGuildVoice},
		{ID: "200", Name: "general", ParentID: "20", Type: discordgo.ChannelTypeGuildText},
	}
	got := filterCategory(channels, "10")
	require.Len(t, got, 1)
	assert.Equal(t, "100", got[0].ID)
	assert.Equal(t, "10", got[0].CategoryID)
	assert.Equal(t, "1", got[0].GuildID)
}

type sink struct{ states []bridge.State }

func (s *sink) SetState(st bridge.State) { s.states = append(s.states, st) }

func TestGatewayEventsDriveState(t *testing.T) {
	st := &sink{}
	d, err := New("token", st)
	require.NoError(t, err)

	d.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "999", Username: "bridge"}})
	assert.Equal(t, "999", d.SelfID())
	d.onDisconnect(nil, &discordgo.Disconnect{})
	d.onResumed(nil, &discordgo.Resumed{})

	assert.Equal(t, []bridge.State{bridge.StateReady, bridge.StateDisconnected, bridge.StateReady}, st.states)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New("", &sink{})
	assert.Error(t, err)
}
