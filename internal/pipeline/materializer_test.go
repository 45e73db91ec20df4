package pipeline_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdesk/chatdesk/internal/chat"
	"github.com/chatdesk/chatdesk/internal/correlation"
	"github.com/chatdesk/chatdesk/internal/database"
	"github.com/chatdesk/chatdesk/internal/pipeline"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

func materializerFixture() (*pipeline.Materializer, *fakeStore, *fakeTicketSystem, *correlation.Store) {
	log := discardLogger()
	store := newFakeStore()
	tickets := newFakeTicketSystem()
	corr := correlation.NewStore(store, tickets, log)
	return pipeline.NewMaterializer(tickets, corr, log), store, tickets, corr
}

func requestMessage(id string) chat.Message {
	return chat.Message{
		MessageID: id,
		ThreadID:  "thread-1",
		UserName:  "Jane Doe",
		Text:      "my vpn keeps dropping",
		SpaceID:   "spaces/AAA",
		CreatedAt: time.Now().UTC(),
	}
}

func requestPayload() ticketing.CreatePayload {
	return ticketing.CreatePayload{
		Title:       "VPN keeps dropping",
		Description: "my vpn keeps dropping",
		Priority:    "3",
	}
}

func TestMaterialize_CreatesOnce(t *testing.T) {
	t.Parallel()

	m, store, tickets, _ := materializerFixture()
	msg := requestMessage("msg-1")

	ticket, wasNew, err := m.Materialize(context.Background(), msg, requestPayload())
	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.Equal(t, "msg-1", ticket.CorrelationID)
	assert.Equal(t, 1, tickets.creates())

	rec, err := store.GetCorrelation(context.Background(), "msg-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ticket.SysID, rec.TicketID)

	// Re-materializing the same message must not create again.
	again, wasNew, err := m.Materialize(context.Background(), msg, requestPayload())
	require.NoError(t, err)
	assert.False(t, wasNew)
	assert.Equal(t, ticket.Number, again.Number)
	assert.Equal(t, 1, tickets.creates())
}

func TestMaterialize_LinksWhenAlreadyCorrelated(t *testing.T) {
	t.Parallel()

	m, store, tickets, _ := materializerFixture()
	_, err := store.InsertCorrelation(context.Background(), &database.CorrelationRecord{
		MessageID:    "msg-1",
		TicketID:     "sys-77",
		TicketNumber: "INC0000077",
	})
	require.NoError(t, err)

	ticket, wasNew, err := m.Materialize(context.Background(), requestMessage("msg-1"), requestPayload())
	require.NoError(t, err)
	assert.False(t, wasNew)
	assert.Equal(t, "INC0000077", ticket.Number)
	assert.Zero(t, tickets.creates())
}

func TestMaterialize_LostClaimLinksWinner(t *testing.T) {
	t.Parallel()

	m, store, tickets, _ := materializerFixture()

	// While our create is in flight, a competing worker records its own
	// correlation for the message.
	tickets.beforeCreateReturns = func(correlationID string) {
		_, _ = store.InsertCorrelation(context.Background(), &database.CorrelationRecord{
			MessageID:    correlationID,
			TicketID:     "sys-winner",
			TicketNumber: "INC0009999",
		})
	}

	ticket, wasNew, err := m.Materialize(context.Background(), requestMessage("msg-1"), requestPayload())
	require.NoError(t, err)
	assert.False(t, wasNew, "losing the correlation claim must not announce a new ticket")
	assert.Equal(t, "INC0009999", ticket.Number)
}

func TestMaterialize_ConcurrentCallsProduceOneTicket(t *testing.T) {
	t.Parallel()

	m, _, tickets, corr := materializerFixture()
	msg := requestMessage("msg-1")

	const workers = 8
	var newCount atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := corr.Do(msg.MessageID, func() (any, error) {
				_, wasNew, err := m.Materialize(context.Background(), msg, requestPayload())
				return wasNew, err
			})
			if err == nil && v.(bool) {
				newCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, tickets.creates(), "concurrent materialization must create exactly one ticket")
	// Shared singleflight results may report the single creation to every
	// caller, but the backend saw one create either way.
	assert.GreaterOrEqual(t, int(newCount.Load()), 1)
}
