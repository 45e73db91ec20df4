// Package correlation maintains the durable link between originating chat
// messages and the tickets they produced. The ticketing backend's
// correlation field is the system of record; the local SQLite cache is an
// optimization only and may be pruned at any time.
package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chatdesk/chatdesk/internal/database"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

// TicketFinder is the remote lookup against the system of record.
type TicketFinder interface {
	FindByCorrelation(ctx context.Context, messageID string) (*ticketing.Ticket, error)
}

// Store resolves and records message-to-ticket correlations. All
// classify-then-materialize work for a single message ID must go through
// Do so that concurrent processing of the same message collapses into one
// execution.
type Store struct {
	cache  database.Store
	remote TicketFinder
	group  singleflight.Group
	logger *slog.Logger
}

// NewStore creates a correlation store over the local cache and the remote
// system of record.
func NewStore(cache database.Store, remote TicketFinder, logger *slog.Logger) *Store {
	return &Store{
		cache:  cache,
		remote: remote,
		logger: logger.With("component", "correlation_store"),
	}
}

// Do runs fn in a per-message-ID critical section. Concurrent callers for
// the same message ID share a single execution and its result, which is
// what makes overlapping runs converge on one ticket.
func (s *Store) Do(messageID string, fn func() (any, error)) (any, error) {
	v, err, shared := s.group.Do(messageID, fn)
	if shared {
		s.logger.Debug("Concurrent processing collapsed into single execution", "message_id", messageID)
	}
	return v, err
}

// Lookup returns the correlation record for a message ID, or nil if the
// message has never produced a ticket. The local cache is consulted first;
// a cache miss falls through to the remote system of record and backfills
// the cache on a hit. A remote failure is returned to the caller: guessing
// here risks duplicate ticket creation.
func (s *Store) Lookup(ctx context.Context, messageID string) (*database.CorrelationRecord, error) {
	rec, err := s.cache.GetCorrelation(ctx, messageID)
	if err != nil {
		// The cache is not the source of truth, so a cache failure
		// degrades to a remote lookup rather than failing the message.
		s.logger.WarnContext(ctx, "Correlation cache read failed, falling back to remote",
			"message_id", messageID, "error", err)
	} else if rec != nil {
		return rec, nil
	}

	ticket, err := s.remote.FindByCorrelation(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("remote correlation lookup for message %s: %w", messageID, err)
	}
	if ticket == nil {
		return nil, nil
	}

	rec = &database.CorrelationRecord{
		MessageID:    messageID,
		TicketID:     ticket.SysID,
		TicketNumber: ticket.Number,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.cache.InsertCorrelation(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "Failed to backfill correlation cache",
			"message_id", messageID, "error", err)
	}
	return rec, nil
}

// Record persists a correlation with first-writer-wins semantics and
// reports whether this call won the write. A lost write means another
// worker correlated the message first; callers should fall back to the
// link path.
func (s *Store) Record(ctx context.Context, messageID, ticketID, ticketNumber string) (bool, error) {
	rec := &database.CorrelationRecord{
		MessageID:    messageID,
		TicketID:     ticketID,
		TicketNumber: ticketNumber,
		CreatedAt:    time.Now().UTC(),
	}

	won, err := s.cache.InsertCorrelation(ctx, rec)
	if err != nil {
		// The remote create already carried the correlation ID, so the
		// system of record holds the link even when the cache write
		// fails. Surface the error so the run report shows it.
		return false, fmt.Errorf("failed to record correlation for message %s: %w", messageID, err)
	}
	return won, nil
}
