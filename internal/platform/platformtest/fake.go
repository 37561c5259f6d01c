// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/platform"
)

type Fake struct {
	mu       sync.Mutex
	channels map[string]platform.Channel
	history  map[string][]platform.Message // oldest first
	roles    map[string]string
	failures map[string]error
	sent     []platform.Message
	seq      int
	calls    int
}

func NewFake() *Fake {
	return &Fake{
		channels: map[string]platform.Channel{},
		history:  map[string][]platform.Message{},
		roles:    map[string]string{},
		failures: map[string]error{},
		seq:      9000,
	}
}

func (f *Fake) AddChannel(ch platform.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch.ID] = ch
}

func (f *Fake) RemoveChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, id)
}

// AddHistory appends messages (oldest first) to the channel's history.
func (f *Fake) AddHistory(channelID string, msgs ...platform.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		m.ChannelID = channelID
		f.history[channelID] = append(f.history[channelID], m)
	}
}

func (f *Fake) AddRole(roleID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[roleID] = name
}

// Fail makes every call touching channelID return err. A nil err clears it.
func (f *Fake) Fail(channelID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, channelID)
		return
	}
	f.failures[channelID] = err
}

func (f *Fake) Sent() []platform.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Message(nil), f.sent...)
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) check(channelID string) error {
	f.calls++
	if err := f.failures[channelID]; err != nil {
		return err
	}
	if _, ok := f.channels[channelID]; !ok {
		return fmt.Errorf("channel %s: %w", channelID, errs.ErrChannelNotFound)
	}
	return nil
}

func (f *Fake) Send(ctx context.Context, channelID, content string) (platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(channelID); err != nil {
		return platform.Message{}, err
	}
	f.seq++
	m := platform.Message{
		ID:         fmt.Sprint(f.seq),
		ChannelID:  channelID,
		GuildID:    f.channels[channelID].GuildID,
		AuthorID:   "1",
		AuthorName: "bridge",
		Content:    content,
		Timestamp:  time.Now().UTC(),
		Self:       true,
	}
	f.sent = append(f.sent, m)
	f.history[channelID] = append(f.history[channelID], m)
	return m, nil
}

func (f *Fake) Channel(ctx context.Context, channelID string) (platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(channelID); err != nil {
		return platform.Channel{}, err
	}
	return f.channels[channelID], nil
}

func (f *Fake) CategoryChannels(ctx context.Context, categoryID string) ([]platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.failures[categoryID]; err != nil {
		return nil, err
	}
	var out []platform.Channel
	for _, ch := range f.channels {
		if ch.CategoryID == categoryID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *Fake) History(ctx context.Context, channelID, beforeID string, limit int) ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(channelID); err != nil {
		return nil, err
	}
	msgs := f.history[channelID]
	end := len(msgs)
	if beforeID != "" {
		end = 0
		for i, m := range msgs {
			if m.ID == beforeID {
				end = i
				break
			}
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]platform.Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (f *Fake) RoleName(ctx context.Context, guildID, roleID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	name, ok := f.roles[roleID]
	if !ok {
		return "", fmt.Errorf("role %s not found", roleID)
	}
	return name, nil
}

var _ platform.Client = (*Fake)(nil)
