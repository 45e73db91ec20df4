package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// InsertCorrelation writes a correlation record unless one already
	// exists for the same message ID. It reports whether this call won
	// the insert: false means another writer got there first and the
	// existing record stands (first writer wins).
	InsertCorrelation(ctx context.Context, rec *CorrelationRecord) (bool, error)

	// GetCorrelation retrieves the correlation record for a message ID.
	// Returns nil, nil if none exists.
	GetCorrelation(ctx context.Context, messageID string) (*CorrelationRecord, error)

	// PruneCorrelations deletes cached correlation records created before
	// the cutoff. The ticketing backend remains the system of record, so
	// pruning the cache never loses the correlation itself.
	PruneCorrelations(ctx context.Context, cutoff time.Time) (int64, error)

	// SaveTrackedTicket inserts or updates a tracked ticket keyed by ticket ID.
	SaveTrackedTicket(ctx context.Context, ticket *TrackedTicket) error

	// ListTrackedTickets retrieves all tickets not yet in a terminal state.
	ListTrackedTickets(ctx context.Context) ([]*TrackedTicket, error)

	// UpdateTrackedTicketState records a new observed state for a ticket.
	UpdateTrackedTicketState(ctx context.Context, ticketID, state string) error

	// DeleteTrackedTicket stops tracking a ticket.
	DeleteTrackedTicket(ctx context.Context, ticketID string) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertCorrelation writes a correlation record with compare-and-set
// semantics on the message ID.
func (s *sqlxStore) InsertCorrelation(ctx context.Context, rec *CorrelationRecord) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("cannot save nil correlation record")
	}
	if rec.MessageID == "" {
		return false, fmt.Errorf("correlation record must have a message_id")
	}
	if rec.TicketID == "" {
		return false, fmt.Errorf("correlation record must have a ticket_id")
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO correlations (message_id, ticket_id, ticket_number, created_at)
        VALUES (:message_id, :ticket_id, :ticket_number, :created_at)
        ON CONFLICT (message_id) DO NOTHING;
    `

	result, err := s.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving correlation record",
			"message_id", rec.MessageID, "ticket_id", rec.TicketID, "error", err)
		return false, fmt.Errorf("failed to save correlation for message %s: %w", rec.MessageID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count for correlation insert",
			"message_id", rec.MessageID, "error", err)
		return false, fmt.Errorf("failed to check correlation insert result: %w", err)
	}

	inserted := affected == 1
	if !inserted {
		s.logger.DebugContext(ctx, "Correlation already exists, insert lost the race",
			"message_id", rec.MessageID)
	}
	return inserted, nil
}

// GetCorrelation retrieves the correlation record for a message ID.
func (s *sqlxStore) GetCorrelation(ctx context.Context, messageID string) (*CorrelationRecord, error) {
	if messageID == "" {
		return nil, fmt.Errorf("message_id cannot be empty")
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var rec CorrelationRecord
	query := `SELECT id, message_id, ticket_id, ticket_number, created_at
	          FROM correlations WHERE message_id = ?`

	err := s.db.GetContext(ctx, &rec, query, messageID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching correlation",
			"message_id", messageID, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting correlation record", "message_id", messageID, "error", err)
		return nil, fmt.Errorf("failed to get correlation for message %s: %w", messageID, err)
	}

	return &rec, nil
}

// PruneCorrelations deletes cached correlation records older than the cutoff.
func (s *sqlxStore) PruneCorrelations(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM correlations WHERE created_at < ?`, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error pruning correlation cache", "error", err)
		return 0, fmt.Errorf("failed to prune correlations: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get pruned row count", "error", err)
		return 0, nil
	}

	s.logger.InfoContext(ctx, "Pruned correlation cache", "deleted", count, "cutoff", cutoff)
	return count, nil
}

// SaveTrackedTicket inserts or updates a tracked ticket keyed by ticket ID.
func (s *sqlxStore) SaveTrackedTicket(ctx context.Context, ticket *TrackedTicket) error {
	if ticket == nil {
		return fmt.Errorf("cannot save nil tracked ticket")
	}
	if ticket.TicketID == "" {
		return fmt.Errorf("tracked ticket must have a ticket_id")
	}

	now := time.Now().UTC()
	ticket.UpdatedAt = now
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}

	query := `
        INSERT INTO tracked_tickets (ticket_id, ticket_number, message_id, space_id, thread_id, state, created_at, updated_at)
        VALUES (:ticket_id, :ticket_number, :message_id, :space_id, :thread_id, :state, :created_at, :updated_at)
        ON CONFLICT (ticket_id) DO UPDATE SET
            state = excluded.state,
            updated_at = excluded.updated_at;
    `

	if _, err := s.db.NamedExecContext(ctx, query, ticket); err != nil {
		s.logger.ErrorContext(ctx, "Error saving tracked ticket",
			"ticket_id", ticket.TicketID, "error", err)
		return fmt.Errorf("failed to save tracked ticket %s: %w", ticket.TicketID, err)
	}

	s.logger.DebugContext(ctx, "Tracked ticket saved", "ticket_id", ticket.TicketID, "state", ticket.State)
	return nil
}

// ListTrackedTickets retrieves all tracked tickets.
func (s *sqlxStore) ListTrackedTickets(ctx context.Context) ([]*TrackedTicket, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var tickets []*TrackedTicket
	query := `SELECT id, ticket_id, ticket_number, message_id, space_id, thread_id, state, created_at, updated_at
	          FROM tracked_tickets
	          ORDER BY created_at ASC`

	err := s.db.SelectContext(ctx, &tickets, query)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while listing tracked tickets", "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error listing tracked tickets", "error", err)
		return nil, fmt.Errorf("failed to list tracked tickets: %w", err)
	}

	return tickets, nil
}

// UpdateTrackedTicketState records a new observed state for a ticket.
func (s *sqlxStore) UpdateTrackedTicketState(ctx context.Context, ticketID, state string) error {
	if ticketID == "" {
		return fmt.Errorf("ticket_id cannot be empty")
	}

	query := `UPDATE tracked_tickets SET state = ?, updated_at = ? WHERE ticket_id = ?`
	result, err := s.db.ExecContext(ctx, query, state, time.Now().UTC(), ticketID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating tracked ticket state",
			"ticket_id", ticketID, "state", state, "error", err)
		return fmt.Errorf("failed to update tracked ticket %s: %w", ticketID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Unexpected number of rows affected when updating tracked ticket",
			"ticket_id", ticketID, "affected", affected)
	}

	return nil
}

// DeleteTrackedTicket stops tracking a ticket.
func (s *sqlxStore) DeleteTrackedTicket(ctx context.Context, ticketID string) error {
	if ticketID == "" {
		return fmt.Errorf("ticket_id cannot be empty")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM tracked_tickets WHERE ticket_id = ?`, ticketID); err != nil {
		s.logger.ErrorContext(ctx, "Error deleting tracked ticket", "ticket_id", ticketID, "error", err)
		return fmt.Errorf("failed to delete tracked ticket %s: %w", ticketID, err)
	}
	return nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}
