// Package outbox delivers replies written in the dashboard to the platform.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/kafka"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/platform"
	"golang.org/x/time/rate"
)

type Store interface {
	ListUndelivered(ctx context.Context, origin model.Origin) ([]model.Message, error)
	GetMessage(ctx context.Context, id uint64) (*model.Message, error)
	MarkDelivered(ctx context.Context, id uint64, platformMessageID string) (bool, error)
}

// Executor runs fn as one uninterrupted unit on the platform loop.
type Executor interface {
	Exec(ctx context.Context, fn func(ctx context.Context, pc platform.Client) error) error
}

type Scanner struct {
	store    Store
	exec     Executor
	interval time.Duration
	limiter  *rate.Limiter
	prefix   string
	events   kafka.EventPublisher
}

// NewScanner paces sends at perSecond messages per second.
func NewScanner(store Store, exec Executor, interval time.Duration, perSecond float64, prefix string, events kafka.EventPublisher) *Scanner {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	if events == nil {
		events = kafka.Nop{}
	}
	return &Scanner{
		store:    store,
		exec:     exec,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		prefix:   prefix,
		events:   events,
	}
}

// Run ticks until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Printf("outbox: scanning every %s", s.interval)
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			log.Println("outbox: stopped")
			return
		}
	}
}

// Tick attempts every pending web message once, oldest first. Failed rows stay
// pending for the next tick.
func (s *Scanner) Tick(ctx context.Context) (delivered, failed int) {
	pending, err := s.store.ListUndelivered(ctx, model.OriginWeb)
	if err != nil {
		log.Printf("outbox: %v", err)
		return 0, 0
	}
	for _, m := range pending {
		if ctx.Err() != nil {
			return delivered, failed
		}
		ok, err := s.DeliverOne(ctx, m.ID)
		switch {
		case errors.Is(err, errs.ErrNotReady):
			// Nothing can be sent until the platform connects.
			return delivered, failed
		case err != nil:
			failed++
			log.Printf("outbox: deliver message %d to ticket %s: %v", m.ID, m.TicketID, err)
		case ok:
			delivered++
		}
	}
	if delivered > 0 || failed > 0 {
		log.Printf("outbox: %d delivered, %d failed, %d pending before tick", delivered, failed, len(pending))
	}
	return delivered, failed
}

// DeliverOne sends one pending message and marks it delivered. The check, the
// send and the mark run as one unit on the platform loop, so concurrent callers
// in this process never send the same row twice. It reports false when the row
// had already been delivered.
func (s *Scanner) DeliverOne(ctx context.Context, id uint64) (bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}
	var (
		delivered bool
		ticketID  string
		sentID    string
	)
	err := s.exec.Exec(ctx, func(ctx context.Context, pc platform.Client) error {
		m, err := s.store.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		if m.DeliveredToPlatform {
			return nil
		}
		if m.Origin != model.OriginWeb {
			return fmt.Errorf("%w: message %d is not a web reply", errs.ErrInvalidInput, id)
		}
		sent, err := pc.Send(ctx, m.TicketID, s.format(m.Content))
		if err != nil {
			return err
		}
		ok, err := s.store.MarkDelivered(ctx, id, sent.ID)
		if err != nil {
			return fmt.Errorf("sent as %s but not marked: %w", sent.ID, err)
		}
		delivered, ticketID, sentID = ok, m.TicketID, sent.ID
		return nil
	})
	if err != nil {
		return false, err
	}
	if delivered {
		s.events.Publish(ctx, kafka.EventMessageDelivered, map[string]interface{}{
			"ticket_id":           ticketID,
			"message_id":          id,
			"platform_message_id": sentID,
		})
	}
	return delivered, nil
}

// format prefixes content and keeps it within the platform's message limit.
func (s *Scanner) format(content string) string {
	out := []rune(s.prefix + content)
	if len(out) > model.MaxContentLength {
		out = out[:model.MaxContentLength]
	}
	return string(out)
}
