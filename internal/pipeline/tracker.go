package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatdesk/chatdesk/internal/database"
	"github.com/chatdesk/chatdesk/internal/notify"
)

// terminalStates are incident states after which tracking stops. Keys are
// the ServiceNow incident state values.
var terminalStates = map[string]bool{
	"6": true, // Resolved
	"7": true, // Closed
	"8": true, // Canceled
}

// stateLabels maps incident state values to the names shown in status
// notifications.
var stateLabels = map[string]string{
	"1": "New",
	"2": "In Progress",
	"3": "On Hold",
	"6": "Resolved",
	"7": "Closed",
	"8": "Canceled",
}

// Tracker watches previously created tickets and posts a status update
// into the originating conversation whenever a ticket's state changes.
type Tracker struct {
	store      database.Store
	tickets    TicketService
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewTracker creates a ticket tracker.
func NewTracker(store database.Store, tickets TicketService, dispatcher Dispatcher, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:      store,
		tickets:    tickets,
		dispatcher: dispatcher,
		logger:     logger.With("component", "tracker"),
	}
}

// TrackTickets polls every tracked ticket once. Per-ticket failures are
// logged and skipped so one bad ticket cannot stall the rest; the
// returned error only reflects the inability to list tracked tickets.
func (t *Tracker) TrackTickets(ctx context.Context) error {
	tracked, err := t.store.ListTrackedTickets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tracked tickets: %w", err)
	}
	if len(tracked) == 0 {
		return nil
	}

	t.logger.InfoContext(ctx, "Checking tracked tickets", "count", len(tracked))

	for _, rec := range tracked {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.checkOne(ctx, rec)
	}
	return nil
}

// CheckTicket re-examines a single tracked ticket immediately, outside
// the polling schedule. Unknown ticket IDs are not an error: callbacks
// can arrive for tickets created before tracking existed.
func (t *Tracker) CheckTicket(ctx context.Context, ticketID string) error {
	tracked, err := t.store.ListTrackedTickets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tracked tickets: %w", err)
	}
	for _, rec := range tracked {
		if rec.TicketID == ticketID {
			t.checkOne(ctx, rec)
			return nil
		}
	}
	t.logger.DebugContext(ctx, "Status callback for untracked ticket ignored", "ticket_id", ticketID)
	return nil
}

func (t *Tracker) checkOne(ctx context.Context, rec *database.TrackedTicket) {
	ticket, err := t.tickets.GetIncident(ctx, rec.TicketID)
	if err != nil {
		t.logger.WarnContext(ctx, "Failed to fetch tracked ticket, will retry next run",
			"ticket_number", rec.TicketNumber, "error", err)
		return
	}
	if ticket == nil {
		t.logger.InfoContext(ctx, "Tracked ticket no longer exists, dropping",
			"ticket_number", rec.TicketNumber)
		if err := t.store.DeleteTrackedTicket(ctx, rec.TicketID); err != nil {
			t.logger.WarnContext(ctx, "Failed to drop tracked ticket",
				"ticket_number", rec.TicketNumber, "error", err)
		}
		return
	}

	if ticket.State == rec.State {
		return
	}

	t.logger.InfoContext(ctx, "Tracked ticket changed state",
		"ticket_number", rec.TicketNumber, "from", rec.State, "to", ticket.State)

	link := t.tickets.TicketLink(ticket.SysID)
	text := notify.StatusUpdateText(ticket, link, stateLabel(ticket.State))
	delivery := t.dispatcher.Dispatch(ctx, notify.Target{
		SpaceID:   rec.SpaceID,
		ThreadID:  rec.ThreadID,
		MessageID: rec.MessageID,
	}, text)
	if !delivery.Delivered {
		// The state update below still happens: repeating an undelivered
		// notification every run would be noisier than missing one.
		t.logger.WarnContext(ctx, "Status update notification failed",
			"ticket_number", rec.TicketNumber)
	}

	if terminalStates[ticket.State] {
		if err := t.store.DeleteTrackedTicket(ctx, rec.TicketID); err != nil {
			t.logger.WarnContext(ctx, "Failed to drop resolved ticket",
				"ticket_number", rec.TicketNumber, "error", err)
		}
		return
	}

	if err := t.store.UpdateTrackedTicketState(ctx, rec.TicketID, ticket.State); err != nil {
		t.logger.WarnContext(ctx, "Failed to record new ticket state",
			"ticket_number", rec.TicketNumber, "error", err)
	}
}

func stateLabel(state string) string {
	if label, ok := stateLabels[state]; ok {
		return label
	}
	return state
}
