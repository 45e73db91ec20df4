package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatdesk/chatdesk/internal/chat"
	"github.com/chatdesk/chatdesk/internal/correlation"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

// TicketService is the ticketing capability the pipeline consumes.
type TicketService interface {
	CreateIncident(ctx context.Context, payload ticketing.CreatePayload) (*ticketing.Ticket, error)
	GetIncident(ctx context.Context, sysID string) (*ticketing.Ticket, error)
	TicketLink(sysID string) string
}

// Materializer turns a classified-unique message into exactly one ticket.
// Creation is idempotent per message ID: the correlation is re-checked
// immediately before creating, the create itself carries the message ID in
// the backend's correlation field, and the local record is claimed with
// first-writer-wins semantics.
type Materializer struct {
	tickets TicketService
	corr    *correlation.Store
	logger  *slog.Logger
}

// NewMaterializer creates a ticket materializer.
func NewMaterializer(tickets TicketService, corr *correlation.Store, logger *slog.Logger) *Materializer {
	return &Materializer{
		tickets: tickets,
		corr:    corr,
		logger:  logger.With("component", "materializer"),
	}
}

// Materialize returns the ticket for msg and whether this call created it.
// wasNew is false when the message was already correlated, either before
// this call or by a concurrent worker that won the correlation claim.
func (m *Materializer) Materialize(ctx context.Context, msg chat.Message, payload ticketing.CreatePayload) (*ticketing.Ticket, bool, error) {
	// Classification may have run a while ago under concurrency; re-check
	// the correlation right before the irreversible create.
	rec, err := m.corr.Lookup(ctx, msg.MessageID)
	if err != nil {
		return nil, false, fmt.Errorf("pre-create correlation check for message %s: %w", msg.MessageID, err)
	}
	if rec != nil {
		m.logger.InfoContext(ctx, "Message correlated between classification and creation, linking",
			"message_id", msg.MessageID, "ticket_number", rec.TicketNumber)
		return m.linkExisting(ctx, rec.TicketID, rec.TicketNumber)
	}

	payload.CorrelationID = msg.MessageID
	ticket, err := m.tickets.CreateIncident(ctx, payload)
	if err != nil {
		return nil, false, fmt.Errorf("incident creation for message %s: %w", msg.MessageID, err)
	}

	won, err := m.corr.Record(ctx, msg.MessageID, ticket.SysID, ticket.Number)
	if err != nil {
		// The backend already holds the correlation via the create
		// payload, so a failed local record does not threaten the
		// exactly-once guarantee. The cache will backfill on the next
		// lookup.
		m.logger.WarnContext(ctx, "Correlation record failed after creation",
			"message_id", msg.MessageID, "ticket_number", ticket.Number, "error", err)
		return ticket, true, nil
	}
	if !won {
		// A concurrent worker claimed the message first. Its ticket is
		// the canonical one; ours is surplus and must not be announced.
		rec, lookupErr := m.corr.Lookup(ctx, msg.MessageID)
		if lookupErr != nil || rec == nil {
			return nil, false, fmt.Errorf("lost correlation claim for message %s but winner not found: %w", msg.MessageID, lookupErr)
		}
		m.logger.WarnContext(ctx, "Lost correlation claim, linking to winning ticket",
			"message_id", msg.MessageID,
			"surplus_ticket", ticket.Number, "winning_ticket", rec.TicketNumber)
		return m.linkExisting(ctx, rec.TicketID, rec.TicketNumber)
	}

	m.logger.InfoContext(ctx, "Ticket materialized",
		"message_id", msg.MessageID, "ticket_number", ticket.Number)
	return ticket, true, nil
}

// linkExisting resolves an already-correlated ticket without creating
// anything. A fetch failure degrades to the identity we already hold from
// the correlation record.
func (m *Materializer) linkExisting(ctx context.Context, ticketID, ticketNumber string) (*ticketing.Ticket, bool, error) {
	ticket, err := m.tickets.GetIncident(ctx, ticketID)
	if err != nil || ticket == nil {
		if err != nil {
			m.logger.WarnContext(ctx, "Failed to fetch linked ticket, using correlation record",
				"ticket_id", ticketID, "error", err)
		}
		return &ticketing.Ticket{SysID: ticketID, Number: ticketNumber}, false, nil
	}
	return ticket, false, nil
}
