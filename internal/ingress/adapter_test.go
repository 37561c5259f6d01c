package ingress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
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

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(_ context.Context, event string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func setup(t *testing.T, strategy string) (*Adapter, *service.Store, *platformtest.Fake, *recorder) {
	t.Helper()
	store := service.NewStore(testutil.NewDB(t))
	fake := platformtest.NewFake()
	fake.AddChannel(platform.Channel{ID: "100", Name: "ticket-0100", GuildID: "1", CategoryID: category})
	fake.AddChannel(platform.Channel{ID: "200", Name: "ticket-eu-0200", GuildID: "1", CategoryID: category})
	fake.AddChannel(platform.Channel{ID: "300", Name: "general", GuildID: "1", CategoryID: "99"})
	classifier, err := region.New(strategy, nil)
	require.NoError(t, err)
	rec := &recorder{}
	return NewAdapter(store, fake, category, classifier, model.RegionUnknown, rec), store, fake, rec
}

func inbound(channelID, id, content string) platform.Message {
	return platform.Message{
		ID:         id,
		ChannelID:  channelID,
		GuildID:    "1",
		AuthorID:   "555",
		AuthorName: "customer",
		Content:    content,
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHandleMessageCreatesTicketAndMessage(t *testing.T) {
	a, store, _, rec := setup(t, "name")
	ctx := context.Background()

	inserted, err := a.HandleMessage(ctx, inbound("100", "42", "hello"))
	require.NoError(t, err)
	assert.True(t, inserted)

	ticket, err := store.GetTicket(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, model.RegionUnknown, ticket.Region)
	assert.Equal(t, model.TicketStatusOpen, ticket.Status)
	assert.Equal(t, "ticket-0100", ticket.Name)
	assert.EqualValues(t, 1, ticket.Unread)

	msgs, err := store.ListMessages(ctx, "100", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, model.OriginPlatform, msgs[0].Origin)
	assert.True(t, msgs[0].DeliveredToPlatform)
	assert.False(t, msgs[0].SeenByWeb)
	require.NotNil(t, msgs[0].PlatformMessageID)
	assert.Equal(t, "42", *msgs[0].PlatformMessageID)

	assert.Equal(t, []string{"ticket.created", "message.ingested"}, rec.events)
}

func TestHandleMessageIsReplaySafe(t *testing.T) {
	a, store, _, rec := setup(t, "name")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := a.HandleMessage(ctx, inbound("100", "42", "hello"))
		require.NoError(t, err)
	}
	msgs, err := store.ListMessages(ctx, "100", 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Len(t, rec.events, 2)
}

func TestHandleMessageClassifiesRegionByName(t *testing.T) {
	a, store, _, _ := setup(t, "name")
	ctx := context.Background()

	_, err := a.HandleMessage(ctx, inbound("200", "43", "hi"))
	require.NoError(t, err)
	ticket, err := store.GetTicket(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, model.RegionEU, ticket.Region)
}

func TestHandleMessageClassifiesRegionByMention(t *testing.T) {
	a, store, fake, _ := setup(t, "mention")
	fake.AddRole("77", "ASIA Support")
	ctx := context.Background()

	first := inbound("100", "50", "hello")
	_, err := a.HandleMessage(ctx, first)
	require.NoError(t, err)
	ticket, err := store.GetTicket(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, model.RegionUnknown, ticket.Region)

	second := inbound("100", "51", "@ASIA Support please")
	second.RoleMentions = []string{"77", "missing"}
	_, err = a.HandleMessage(ctx, second)
	require.NoError(t, err)
	ticket, err = store.GetTicket(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, model.RegionASIA, ticket.Region, "a later mention fills an unknown region")
}

func TestHandleMessageIgnoresOtherCategories(t *testing.T) {
	a, store, _, rec := setup(t, "name")
	ctx := context.Background()

	inserted, err := a.HandleMessage(ctx, inbound("300", "44", "off topic"))
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = store.GetTicket(ctx, "300")
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
	assert.Empty(t, rec.events)
}

func TestHandleMessageIgnoresSelf(t *testing.T) {
	a, store, fake, _ := setup(t, "name")
	ctx := context.Background()

	m := inbound("100", "45", "**[STAFF]:** reply")
	m.Self = true
	inserted, err := a.HandleMessage(ctx, m)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Zero(t, fake.Calls(), "self messages are dropped before any lookup")

	_, err = store.GetTicket(ctx, "100")
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
}

func TestHandleMessageUnknownChannel(t *testing.T) {
	a, _, _, _ := setup(t, "name")
	_, err := a.HandleMessage(context.Background(), inbound("404", "46", "hello"))
	assert.ErrorIs(t, err, errs.ErrChannelNotFound)
}

func TestRecordUsesArrivalTimeWhenMissing(t *testing.T) {
	a, store, _, _ := setup(t, "name")
	arrival := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	a.now = func() time.Time { return arrival }
	ctx := context.Background()

	m := inbound("100", "47", "no timestamp")
	m.Timestamp = time.Time{}
	_, err := a.Record(ctx, platform.Channel{ID: "100", Name: "ticket-0100", CategoryID: category}, m)
	require.NoError(t, err)

	msgs, err := store.ListMessages(ctx, "100", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, arrival.Equal(msgs[0].Timestamp))
}
