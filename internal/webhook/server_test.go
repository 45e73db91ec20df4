package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdesk/chatdesk/internal/config"
	"github.com/chatdesk/chatdesk/internal/database"
	"github.com/chatdesk/chatdesk/internal/notify"
	"github.com/chatdesk/chatdesk/internal/pipeline"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

type stubStore struct {
	pingErr error
	tracked []*database.TrackedTicket
}

func (s *stubStore) Ping(context.Context) error { return s.pingErr }
func (s *stubStore) InsertCorrelation(context.Context, *database.CorrelationRecord) (bool, error) {
	return false, nil
}
func (s *stubStore) GetCorrelation(context.Context, string) (*database.CorrelationRecord, error) {
	return nil, nil
}
func (s *stubStore) PruneCorrelations(context.Context, time.Time) (int64, error) { return 0, nil }
func (s *stubStore) SaveTrackedTicket(context.Context, *database.TrackedTicket) error {
	return nil
}
func (s *stubStore) ListTrackedTickets(context.Context) ([]*database.TrackedTicket, error) {
	return s.tracked, nil
}
func (s *stubStore) UpdateTrackedTicketState(context.Context, string, string) error { return nil }
func (s *stubStore) DeleteTrackedTicket(context.Context, string) error              { return nil }
func (s *stubStore) RunSQLMaintenance(context.Context) error                        { return nil }

type stubTickets struct {
	tickets map[string]*ticketing.Ticket
}

func (s *stubTickets) CreateIncident(context.Context, ticketing.CreatePayload) (*ticketing.Ticket, error) {
	return nil, errors.New("not implemented")
}
func (s *stubTickets) GetIncident(_ context.Context, sysID string) (*ticketing.Ticket, error) {
	return s.tickets[sysID], nil
}
func (s *stubTickets) TicketLink(sysID string) string { return "https://example.com/" + sysID }

type stubDispatcher struct {
	count int
}

func (s *stubDispatcher) Dispatch(context.Context, notify.Target, string) notify.Outcome {
	s.count++
	return notify.Outcome{Delivered: true, Tier: notify.TierThread}
}

func newTestServer(store *stubStore, tickets *stubTickets) (*Server, *stubDispatcher) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := &stubDispatcher{}
	tracker := pipeline.NewTracker(store, tickets, dispatcher, log)
	return NewServer(config.WebhookConfig{Addr: ":0"}, tracker, store, log), dispatcher
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(&stubStore{}, &stubTickets{})
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	srv, _ = newTestServer(&stubStore{pingErr: errors.New("locked")}, &stubTickets{})
	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTicketStatusCallback(t *testing.T) {
	t.Parallel()

	store := &stubStore{tracked: []*database.TrackedTicket{{
		TicketID:     "sys-1",
		TicketNumber: "INC0000001",
		MessageID:    "msg-1",
		SpaceID:      "spaces/AAA",
		ThreadID:     "thread-1",
		State:        "1",
	}}}
	tickets := &stubTickets{tickets: map[string]*ticketing.Ticket{
		"sys-1": {SysID: "sys-1", Number: "INC0000001", State: "2"},
	}}

	srv, dispatcher := newTestServer(store, tickets)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hooks/ticket-status",
		strings.NewReader(`{"sys_id":"sys-1","number":"INC0000001","state":"2"}`))
	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, dispatcher.count, "a state change triggers one status notification")
}

func TestTicketStatusCallback_Validation(t *testing.T) {
	t.Parallel()

	srv, dispatcher := newTestServer(&stubStore{}, &stubTickets{})

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hooks/ticket-status",
		strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hooks/ticket-status",
		strings.NewReader(`{"state":"2"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Zero(t, dispatcher.count)
}

func TestTicketStatusCallback_UntrackedTicketAccepted(t *testing.T) {
	t.Parallel()

	srv, dispatcher := newTestServer(&stubStore{}, &stubTickets{})

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hooks/ticket-status",
		strings.NewReader(`{"sys_id":"sys-unknown","state":"2"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Zero(t, dispatcher.count)
}
