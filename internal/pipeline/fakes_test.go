package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chatdesk/chatdesk/internal/chat"
	"github.com/chatdesk/chatdesk/internal/database"
	"github.com/chatdesk/chatdesk/internal/gemini"
	"github.com/chatdesk/chatdesk/internal/notify"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory database.Store.
type fakeStore struct {
	mu      sync.Mutex
	recs    map[string]*database.CorrelationRecord
	tracked map[string]*database.TrackedTicket
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recs:    make(map[string]*database.CorrelationRecord),
		tracked: make(map[string]*database.TrackedTicket),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) InsertCorrelation(_ context.Context, rec *database.CorrelationRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.recs[rec.MessageID]; exists {
		return false, nil
	}
	f.recs[rec.MessageID] = rec
	return true, nil
}

func (f *fakeStore) GetCorrelation(_ context.Context, messageID string) (*database.CorrelationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recs[messageID], nil
}

func (f *fakeStore) PruneCorrelations(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeStore) SaveTrackedTicket(_ context.Context, ticket *database.TrackedTicket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked[ticket.TicketID] = ticket
	return nil
}

func (f *fakeStore) ListTrackedTickets(context.Context) ([]*database.TrackedTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*database.TrackedTicket, 0, len(f.tracked))
	for _, t := range f.tracked {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) UpdateTrackedTicketState(_ context.Context, ticketID, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tracked[ticketID]; ok {
		t.State = state
	}
	return nil
}

func (f *fakeStore) DeleteTrackedTicket(_ context.Context, ticketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracked, ticketID)
	return nil
}

func (f *fakeStore) RunSQLMaintenance(context.Context) error { return nil }

func (f *fakeStore) trackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tracked)
}

// fakeTicketSystem is an in-memory ticketing backend honoring the
// correlation field.
type fakeTicketSystem struct {
	mu          sync.Mutex
	seq         int
	tickets     map[string]*ticketing.Ticket
	createCalls int
	// beforeCreateReturns runs while a create is in flight, letting tests
	// inject a racing writer.
	beforeCreateReturns func(correlationID string)
}

func newFakeTicketSystem() *fakeTicketSystem {
	return &fakeTicketSystem{tickets: make(map[string]*ticketing.Ticket)}
}

func (f *fakeTicketSystem) CreateIncident(_ context.Context, payload ticketing.CreatePayload) (*ticketing.Ticket, error) {
	f.mu.Lock()
	f.seq++
	f.createCalls++
	ticket := &ticketing.Ticket{
		SysID:            fmt.Sprintf("sys-%d", f.seq),
		Number:           fmt.Sprintf("INC%07d", f.seq),
		State:            "1",
		ShortDescription: payload.Title,
		Description:      payload.Description,
		Priority:         payload.Priority,
		CorrelationID:    payload.CorrelationID,
	}
	f.tickets[ticket.SysID] = ticket
	hook := f.beforeCreateReturns
	f.mu.Unlock()

	if hook != nil {
		hook(payload.CorrelationID)
	}
	return ticket, nil
}

func (f *fakeTicketSystem) GetIncident(_ context.Context, sysID string) (*ticketing.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickets[sysID], nil
}

func (f *fakeTicketSystem) FindByCorrelation(_ context.Context, messageID string) (*ticketing.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.CorrelationID == messageID {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTicketSystem) ListRecent(context.Context, time.Duration, int) ([]ticketing.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ticketing.Ticket, 0, len(f.tickets))
	for _, t := range f.tickets {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeTicketSystem) TicketLink(sysID string) string {
	return "https://example.service-now.com/nav_to.do?uri=incident.do?sys_id=" + sysID
}

func (f *fakeTicketSystem) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

// fakeAI answers every capability deterministically, with per-message
// overrides for intent behavior.
type fakeAI struct {
	mu          sync.Mutex
	intentErrs  map[string]error
	notRequests map[string]bool
	intentCalls int
}

func newFakeAI() *fakeAI {
	return &fakeAI{
		intentErrs:  make(map[string]error),
		notRequests: make(map[string]bool),
	}
}

func (f *fakeAI) ClassifyIntent(_ context.Context, msg chat.Message) (*gemini.IntentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intentCalls++
	if err := f.intentErrs[msg.MessageID]; err != nil {
		return nil, err
	}
	if f.notRequests[msg.MessageID] {
		return &gemini.IntentResult{IsRequest: false, Confidence: 0.9, Reasoning: "casual conversation"}, nil
	}
	return &gemini.IntentResult{IsRequest: true, Confidence: 0.95, Reasoning: "describes a technical problem"}, nil
}

func (f *fakeAI) Summarize(_ context.Context, msg chat.Message) (*gemini.TicketSummary, error) {
	return &gemini.TicketSummary{
		Title:            "Issue: " + msg.MessageID,
		Description:      msg.Text,
		ProblemStatement: msg.Text,
		UserImpact:       "User blocked",
		UrgencyLevel:     "Medium",
	}, nil
}

func (f *fakeAI) Categorize(context.Context, *gemini.TicketSummary) (*gemini.TicketCategory, error) {
	return &gemini.TicketCategory{
		Category:        "software",
		Subcategory:     "application",
		Priority:        "3",
		Urgency:         "3",
		AssignmentGroup: "Service Desk",
	}, nil
}

func (f *fakeAI) JudgeSimilarity(context.Context, chat.Message, []ticketing.Ticket) (*gemini.SimilarityResult, error) {
	return &gemini.SimilarityResult{IsDuplicate: false, Confidence: 0.1, Reasoning: "unrelated"}, nil
}

// fakeDispatcher records deliveries and always succeeds at the thread tier.
type fakeDispatcher struct {
	mu      sync.Mutex
	targets []notify.Target
	texts   []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, target notify.Target, text string) notify.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	f.texts = append(f.texts, text)
	return notify.Outcome{
		Delivered: true,
		Tier:      notify.TierThread,
		Attempts:  []notify.Attempt{{Tier: notify.TierThread}},
	}
}

func (f *fakeDispatcher) deliveries() []notify.Target {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Target(nil), f.targets...)
}

// fakeSource serves a fixed batch.
type fakeSource struct {
	messages []chat.Message
}

func (f *fakeSource) ListMessages(context.Context, time.Time) ([]chat.Message, error) {
	return f.messages, nil
}
