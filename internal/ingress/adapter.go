// Package ingress turns platform messages into stored ticket messages.
package ingress

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/kafka"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/platform"
	"github.com/psds-microservice/ticket-bridge/internal/region"
	"github.com/psds-microservice/ticket-bridge/internal/service"
)

// Store is the part of service.Store the adapter writes to.
type Store interface {
	UpsertTicket(ctx context.Context, id, name string, region model.Region, status model.TicketStatus) (*model.Ticket, bool, error)
	InsertMessageIfAbsent(ctx context.Context, m service.NewMessage) (bool, error)
}

// Resolver looks up platform metadata. In production it is the bridge client.
type Resolver interface {
	Channel(ctx context.Context, channelID string) (platform.Channel, error)
	RoleName(ctx context.Context, guildID, roleID string) (string, error)
}

type Adapter struct {
	store         Store
	resolver      Resolver
	categoryID    string
	classifier    region.Classifier
	defaultRegion model.Region
	events        kafka.EventPublisher
	now           func() time.Time
}

func NewAdapter(store Store, resolver Resolver, categoryID string, classifier region.Classifier, defaultRegion model.Region, events kafka.EventPublisher) *Adapter {
	if defaultRegion == "" {
		defaultRegion = model.RegionUnknown
	}
	if events == nil {
		events = kafka.Nop{}
	}
	return &Adapter{
		store:         store,
		resolver:      resolver,
		categoryID:    categoryID,
		classifier:    classifier,
		defaultRegion: defaultRegion,
		events:        events,
		now:           time.Now,
	}
}

// CategoryID is the monitored category.
func (a *Adapter) CategoryID() string { return a.categoryID }

// HandleMessage ingests a live platform event. Messages written by the bridge
// itself and messages from channels outside the monitored category are dropped.
func (a *Adapter) HandleMessage(ctx context.Context, m platform.Message) (bool, error) {
	if m.Self {
		return false, nil
	}
	ch, err := a.resolver.Channel(ctx, m.ChannelID)
	if err != nil {
		return false, fmt.Errorf("resolve channel %s: %w", m.ChannelID, err)
	}
	if !a.InScope(ch) {
		return false, nil
	}
	return a.Record(ctx, ch, m)
}

func (a *Adapter) InScope(ch platform.Channel) bool {
	return a.categoryID != "" && ch.CategoryID == a.categoryID
}

// EnsureTicket registers ch as an open ticket, classifying its region from the
// channel name and the given role names.
func (a *Adapter) EnsureTicket(ctx context.Context, ch platform.Channel, roleNames []string) (*model.Ticket, bool, error) {
	reg := a.defaultRegion
	if a.classifier != nil {
		if r, ok := a.classifier.Classify(region.Input{ChannelName: ch.Name, RoleNames: roleNames}); ok {
			reg = r
		}
	}
	t, created, err := a.store.UpsertTicket(ctx, ch.ID, ch.Name, reg, model.TicketStatusOpen)
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Printf("ingress: ticket %s (%s) registered, region %s", t.ID, t.Name, t.Region)
		a.events.Publish(ctx, kafka.EventTicketCreated, map[string]interface{}{
			"ticket_id": t.ID,
			"name":      t.Name,
			"region":    string(t.Region),
		})
	}
	return t, created, nil
}

// Record stores m as a platform-origin message of channel ch. Replaying the same
// message is a no-op.
func (a *Adapter) Record(ctx context.Context, ch platform.Channel, m platform.Message) (bool, error) {
	if _, _, err := a.EnsureTicket(ctx, ch, a.roleNames(ctx, ch, m)); err != nil {
		return false, err
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}
	inserted, err := a.store.InsertMessageIfAbsent(ctx, service.NewMessage{
		TicketID:          ch.ID,
		PlatformMessageID: m.ID,
		Origin:            model.OriginPlatform,
		AuthorID:          m.AuthorID,
		AuthorName:        m.AuthorName,
		Content:           m.Content,
		Timestamp:         ts,
		Delivered:         true,
		Seen:              false,
	})
	if err != nil {
		return false, err
	}
	if inserted {
		a.events.Publish(ctx, kafka.EventMessageIngested, map[string]interface{}{
			"ticket_id":           ch.ID,
			"platform_message_id": m.ID,
			"author":              m.AuthorName,
		})
	}
	return inserted, nil
}

func (a *Adapter) roleNames(ctx context.Context, ch platform.Channel, m platform.Message) []string {
	if len(m.RoleMentions) == 0 || a.classifier == nil || !region.UsesRoles(a.classifier) {
		return nil
	}
	guildID := m.GuildID
	if guildID == "" {
		guildID = ch.GuildID
	}
	names := make([]string, 0, len(m.RoleMentions))
	for _, id := range m.RoleMentions {
		name, err := a.resolver.RoleName(ctx, guildID, id)
		if err != nil {
			log.Printf("ingress: resolve role %s in %s: %v", id, guildID, err)
			continue
		}
		names = append(names, name)
	}
	return names
}
