package model

import (
	"strings"
	"time"
)

type TicketStatus string

const (
	TicketStatusOpen      TicketStatus = "open"
	TicketStatusCompleted TicketStatus = "completed"
)

// Region is the routing tag shown next to a ticket in the dashboard.
type Region string

const (
	RegionEU      Region = "EU"
	RegionNA      Region = "NA"
	RegionASIA    Region = "ASIA"
	RegionUnknown Region = "unknown"
)

var regions = []Region{RegionEU, RegionNA, RegionASIA, RegionUnknown}

// ParseRegion accepts any case ("eu", "Asia") and returns the canonical tag.
func ParseRegion(s string) (Region, bool) {
	s = strings.TrimSpace(s)
	for _, r := range regions {
		if strings.EqualFold(string(r), s) {
			return r, true
		}
	}
	return "", false
}

// Origin tells where a message was written.
type Origin string

const (
	// OriginPlatform messages were observed on Discord.
	OriginPlatform Origin = "platform"
	// OriginWeb messages were written in the dashboard and are delivered by the outbox.
	OriginWeb Origin = "web"
)

func (o Origin) Valid() bool {
	return o == OriginPlatform || o == OriginWeb
}

// MaxContentLength is Discord's limit for a single message.
const MaxContentLength = 2000

// ValidTicketID reports whether id looks like a Discord snowflake.
func ValidTicketID(id string) bool {
	if id == "" || len(id) > 20 {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type Ticket struct {
	ID        string       `gorm:"primaryKey;type:varchar(32)" json:"id"`
	Name      string       `gorm:"type:varchar(100);not null" json:"name"`
	Region    Region       `gorm:"type:varchar(16);not null" json:"region"`
	Status    TicketStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	OwnerID   *string      `gorm:"type:varchar(32)" json:"owner_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`

	Unread int64 `gorm:"-" json:"unread"`
}

type Message struct {
	ID                  uint64     `gorm:"primaryKey" json:"id"`
	TicketID            string     `gorm:"type:varchar(32);index;not null" json:"ticket_id"`
	PlatformMessageID   *string    `gorm:"type:varchar(32);uniqueIndex" json:"platform_message_id,omitempty"`
	Origin              Origin     `gorm:"type:varchar(16);not null" json:"origin"`
	AuthorID            string     `gorm:"type:varchar(32);not null" json:"author_id,omitempty"`
	AuthorName          string     `gorm:"type:varchar(100);not null" json:"author"`
	Content             string     `gorm:"type:text;not null" json:"content"`
	Timestamp           time.Time  `gorm:"column:sent_at;index;not null" json:"timestamp"`
	DeliveredToPlatform bool       `gorm:"not null" json:"delivered_to_platform"`
	SeenByWeb           bool       `gorm:"not null" json:"seen_by_web"`
	DeliveredAt         *time.Time `json:"delivered_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
