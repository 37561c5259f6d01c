package backfill

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/ingress"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/platform"
	"github.com/psds-microservice/ticket-bridge/internal/platform/platformtest"
	"github.com/psds-microservice/ticket-bridge/internal/region"
	"github.com/psds-microservice/ticket-bridge/internal/service"
	"github.com/psds-microservice/ticket-bridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const category = "10"

func history(channelID string, n int) []platform.Message {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]platform.Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, platform.Message{
			ID:         fmt.Sprintf("%s%05d", channelID, i+1),
			AuthorID:   "555",
			AuthorName: "customer",
			Content:    fmt.Sprintf("message %d", i+1),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func setup(t *testing.T, pageSize int) (*Backfiller, *service.Store, *platformtest.Fake) {
	t.Helper()
	store := service.NewStore(testutil.NewDB(t))
	fake := platformtest.NewFake()
	fake.AddChannel(platform.Channel{ID: "100", Name: "ticket-eu-0100", CategoryID: category})
	fake.AddChannel(platform.Channel{ID: "200", Name: "ticket-0200", CategoryID: category})
	fake.AddChannel(platform.Channel{ID: "300", Name: "general", CategoryID: "99"})
	fake.AddHistory("100", history("100", 5)...)
	fake.AddHistory("200", history("200", 3)...)
	fake.AddHistory("300", history("300", 2)...)

	classifier, err := region.New("name", nil)
	require.NoError(t, err)
	adapter := ingress.NewAdapter(store, fake, category, classifier, model.RegionNA, nil)
	return New(fake, adapter, pageSize), store, fake
}

func count(t *testing.T, store *service.Store, ticketID string) int {
	t.Helper()
	msgs, err := store.ListMessages(context.Background(), ticketID, 0, 0)
	require.NoError(t, err)
	return len(msgs)
}

func TestRunIsIdempotent(t *testing.T) {
	b, store, _ := setup(t, 2)
	ctx := context.Background()

	rep, err := b.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Channels)
	assert.Equal(t, 2, rep.TicketsCreated)
	assert.Equal(t, 8, rep.Fetched)
	assert.Equal(t, 8, rep.Inserted)
	assert.Zero(t, rep.Failed)

	rep, err = b.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, rep.Fetched)
	assert.Zero(t, rep.Inserted)
	assert.Zero(t, rep.TicketsCreated)

	assert.Equal(t, 5, count(t, store, "100"))
	assert.Equal(t, 3, count(t, store, "200"))

	ticket, err := store.GetTicket(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, model.RegionEU, ticket.Region)
	other, err := store.GetTicket(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, model.RegionNA, other.Region, "default region when nothing matches")

	_, err = store.GetTicket(ctx, "300")
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
}

func TestRunStoresHistoryInChronologicalOrder(t *testing.T) {
	b, store, _ := setup(t, 2)
	_, err := b.Run(context.Background(), 0)
	require.NoError(t, err)

	msgs, err := store.ListMessages(context.Background(), "100", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, "message 1", msgs[0].Content)
	assert.Equal(t, "message 5", msgs[4].Content)
}

func TestRunRespectsLimit(t *testing.T) {
	b, store, _ := setup(t, 2)
	rep, err := b.Run(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Fetched)
	assert.Equal(t, 3, count(t, store, "100"))

	msgs, err := store.ListMessages(context.Background(), "100", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "message 3", msgs[0].Content, "the newest messages are fetched first")
}

func TestRunIsolatesChannelFailures(t *testing.T) {
	b, store, fake := setup(t, 100)
	fake.Fail("100", errors.New("503 service unavailable"))

	rep, err := b.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 3, rep.Inserted)
	require.Len(t, rep.Results, 2)
	for _, res := range rep.Results {
		if res.ChannelID == "100" {
			assert.Contains(t, res.Error, "503")
		} else {
			assert.Empty(t, res.Error)
		}
	}
	assert.Zero(t, count(t, store, "100"))
	assert.Equal(t, 3, count(t, store, "200"))
}

// failingRecorder fails Record for one message id and delegates the rest.
type failingRecorder struct {
	Recorder
	badID string
}

func (r failingRecorder) Record(ctx context.Context, ch platform.Channel, m platform.Message) (bool, error) {
	if m.ID == r.badID {
		return false, errors.New("constraint failed")
	}
	return r.Recorder.Record(ctx, ch, m)
}

func TestRunSkipsMessagesThatFailToRecord(t *testing.T) {
	b, store, _ := setup(t, 2)
	b.rec = failingRecorder{Recorder: b.rec, badID: "10000005"}

	rep, err := b.RunChannel(context.Background(), "100", 0)
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	res := rep.Results[0]
	assert.Empty(t, res.Error)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 4, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Contains(t, res.RecordError, "10000005")
	assert.Equal(t, 1, rep.Skipped)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, 4, count(t, store, "100"))

	// The failing row is retried on the next run; the rest stay idempotent.
	b.rec = b.rec.(failingRecorder).Recorder
	rep, err = b.RunChannel(context.Background(), "100", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Inserted)
	assert.Equal(t, 5, count(t, store, "100"))
}

func TestRunSkipsSelfMessages(t *testing.T) {
	b, store, fake := setup(t, 100)
	_, err := fake.Send(context.Background(), "200", "**[STAFF]:** hi")
	require.NoError(t, err)

	rep, err := b.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 9, rep.Fetched)
	assert.Equal(t, 8, rep.Inserted)
	assert.Equal(t, 3, count(t, store, "200"))
}

func TestRunChannel(t *testing.T) {
	b, store, _ := setup(t, 100)
	ctx := context.Background()

	rep, err := b.RunChannel(ctx, "200", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Inserted)
	assert.Zero(t, count(t, store, "100"))

	_, err = b.RunChannel(ctx, "300", 0)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = b.RunChannel(ctx, "404", 0)
	assert.ErrorIs(t, err, errs.ErrChannelNotFound)
}

func TestRunFailsWhenCategoryUnavailable(t *testing.T) {
	b, _, fake := setup(t, 100)
	fake.Fail(category, errs.ErrForbidden)
	_, err := b.Run(context.Background(), 0)
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

type readyNow struct{}

func (readyNow) WaitReady(context.Context) error { return nil }

func TestStartRunsOnceWithoutInterval(t *testing.T) {
	b, store, _ := setup(t, 100)
	done := make(chan struct{})
	go func() {
		b.Start(context.Background(), readyNow{}, 0, 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
	}
	assert.Equal(t, 5, count(t, store, "100"))
}
