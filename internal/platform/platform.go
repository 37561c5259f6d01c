// Package platform describes the chat platform as the bridge sees it: a small
// capability set independent of the Discord client library.
package platform

import (
	"context"
	"time"
)

// Message is a platform message normalised for ingestion.
type Message struct {
	ID         string
	ChannelID  string
	GuildID    string
	AuthorID   string
	AuthorName string
	Content    string
	Timestamp  time.Time
	// RoleMentions holds the ids of roles mentioned in the message.
	RoleMentions []string
	// Self is true when the bridge's own bot user wrote the message.
	Self bool
}

type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GuildID    string `json:"guild_id"`
	CategoryID string `json:"category_id"`
}

// Client is implemented by the Discord adapter. Every method performs (or may
// perform) network I/O and must only be called from the bridge loop.
type Client interface {
	Send(ctx context.Context, channelID, content string) (Message, error)
	Channel(ctx context.Context, channelID string) (Channel, error)
	CategoryChannels(ctx context.Context, categoryID string) ([]Channel, error)
	// History returns up to limit messages older than beforeID (newest first).
	// An empty beforeID starts from the latest message.
	History(ctx context.Context, channelID, beforeID string, limit int) ([]Message, error)
	RoleName(ctx context.Context, guildID, roleID string) (string, error)
}
