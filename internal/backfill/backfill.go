// Package backfill imports channel history the live event stream missed, for
// example while the bridge was offline.
package backfill

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/platform"
)

type Source interface {
	Channel(ctx context.Context, channelID string) (platform.Channel, error)
	CategoryChannels(ctx context.Context, categoryID string) ([]platform.Channel, error)
	History(ctx context.Context, channelID, beforeID string, limit int) ([]platform.Message, error)
}

// Recorder is implemented by ingress.Adapter.
type Recorder interface {
	CategoryID() string
	InScope(ch platform.Channel) bool
	EnsureTicket(ctx context.Context, ch platform.Channel, roleNames []string) (*model.Ticket, bool, error)
	Record(ctx context.Context, ch platform.Channel, m platform.Message) (bool, error)
}

type ChannelResult struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
	Created   bool   `json:"ticket_created"`
	Fetched   int    `json:"fetched"`
	Inserted  int    `json:"inserted"`
	// Skipped counts messages that could not be recorded; paging continues past them.
	Skipped     int    `json:"skipped"`
	RecordError string `json:"record_error,omitempty"`
	Error       string `json:"error,omitempty"`
}

type Report struct {
	Channels       int             `json:"channels"`
	TicketsCreated int             `json:"tickets_created"`
	Fetched        int             `json:"fetched"`
	Inserted       int             `json:"inserted"`
	Skipped        int             `json:"skipped"`
	Failed         int             `json:"failed"`
	Results        []ChannelResult `json:"results"`
}

type Backfiller struct {
	src      Source
	rec      Recorder
	pageSize int
}

func New(src Source, rec Recorder, pageSize int) *Backfiller {
	if pageSize < 1 || pageSize > 100 {
		pageSize = 100
	}
	return &Backfiller{src: src, rec: rec, pageSize: pageSize}
}

// Run backfills every text channel of the monitored category. limit caps the
// messages fetched per channel, 0 means the whole history. A failing channel is
// reported and does not stop the others.
func (b *Backfiller) Run(ctx context.Context, limit int) (Report, error) {
	var rep Report
	channels, err := b.src.CategoryChannels(ctx, b.rec.CategoryID())
	if err != nil {
		return rep, fmt.Errorf("list category channels: %w", err)
	}
	for _, ch := range channels {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		res := b.channel(ctx, ch, limit)
		rep.add(res)
	}
	log.Printf("backfill: %d channel(s), %d fetched, %d inserted, %d skipped, %d failed",
		rep.Channels, rep.Fetched, rep.Inserted, rep.Skipped, rep.Failed)
	return rep, nil
}

// RunChannel backfills a single channel of the monitored category.
func (b *Backfiller) RunChannel(ctx context.Context, channelID string, limit int) (Report, error) {
	var rep Report
	ch, err := b.src.Channel(ctx, channelID)
	if err != nil {
		return rep, err
	}
	if !b.rec.InScope(ch) {
		return rep, fmt.Errorf("%w: channel %s is not in the monitored category", errs.ErrInvalidInput, channelID)
	}
	rep.add(b.channel(ctx, ch, limit))
	return rep, nil
}

func (r *Report) add(res ChannelResult) {
	r.Channels++
	r.Fetched += res.Fetched
	r.Inserted += res.Inserted
	r.Skipped += res.Skipped
	if res.Created {
		r.TicketsCreated++
	}
	if res.Error != "" {
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

func (b *Backfiller) channel(ctx context.Context, ch platform.Channel, limit int) ChannelResult {
	res := ChannelResult{ChannelID: ch.ID, Name: ch.Name}
	_, created, err := b.rec.EnsureTicket(ctx, ch, nil)
	if err != nil {
		res.Error = err.Error()
		log.Printf("backfill: channel %s: %v", ch.ID, err)
		return res
	}
	res.Created = created
	if err := b.history(ctx, ch, limit, &res); err != nil {
		res.Error = err.Error()
		log.Printf("backfill: channel %s (%s): %v", ch.ID, ch.Name, err)
	}
	return res
}

// history pages newest to oldest until limit or the start of the channel. A
// message that fails to record is skipped; only a failed fetch ends the channel.
func (b *Backfiller) history(ctx context.Context, ch platform.Channel, limit int, res *ChannelResult) error {
	before := ""
	for {
		n := b.pageSize
		if limit > 0 && limit-res.Fetched < n {
			n = limit - res.Fetched
		}
		if n <= 0 {
			return nil
		}
		page, err := b.src.History(ctx, ch.ID, before, n)
		if err != nil {
			return fmt.Errorf("history before %q: %w", before, err)
		}
		for _, m := range page {
			res.Fetched++
			if m.Self {
				continue
			}
			ok, err := b.rec.Record(ctx, ch, m)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				res.Skipped++
				if res.RecordError == "" {
					res.RecordError = fmt.Sprintf("message %s: %v", m.ID, err)
				}
				log.Printf("backfill: channel %s: record message %s: %v", ch.ID, m.ID, err)
				continue
			}
			if ok {
				res.Inserted++
			}
		}
		if len(page) < n {
			return nil
		}
		before = page[len(page)-1].ID
	}
}

// Waiter blocks until the platform has connected.
type Waiter interface {
	WaitReady(ctx context.Context) error
}

// Start runs a full backfill once the platform is ready and then every
// interval. An interval of 0 runs it once.
func (b *Backfiller) Start(ctx context.Context, ready Waiter, interval time.Duration, limit int) {
	if err := ready.WaitReady(ctx); err != nil {
		return
	}
	if _, err := b.Run(ctx, limit); err != nil {
		log.Printf("backfill: %v", err)
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := b.Run(ctx, limit); err != nil {
				log.Printf("backfill: %v", err)
			}
		case <-ctx.Done():
			log.Println("backfill: stopped")
			return
		}
	}
}
