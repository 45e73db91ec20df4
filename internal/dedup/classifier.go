// Package dedup decides whether an incoming message represents a new
// support request or a duplicate. Three tiers run in order, cheapest and
// most certain first: pattern matching against the system's own
// confirmation markers, a correlation lookup, and an LLM similarity
// judgement over recent tickets.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatdesk/chatdesk/internal/chat"
	"github.com/chatdesk/chatdesk/internal/correlation"
	"github.com/chatdesk/chatdesk/internal/gemini"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

// Kind is the classification outcome for a message.
type Kind int

const (
	// Unique means no duplicate was detected; a new ticket may be created.
	Unique Kind = iota
	// DuplicateEcho means the message is the system's own confirmation
	// re-observed as input.
	DuplicateEcho
	// DuplicateCorrelated means the message already produced a ticket.
	DuplicateCorrelated
)

func (k Kind) String() string {
	switch k {
	case Unique:
		return "unique"
	case DuplicateEcho:
		return "duplicate_echo"
	case DuplicateCorrelated:
		return "duplicate_correlated"
	default:
		return "unknown"
	}
}

// Result carries the classification and, for correlated duplicates, the
// existing ticket identity.
type Result struct {
	Kind         Kind
	Reason       string
	TicketID     string
	TicketNumber string
}

// SimilarityJudge is the probabilistic capability used by the third tier.
type SimilarityJudge interface {
	JudgeSimilarity(ctx context.Context, msg chat.Message, recent []ticketing.Ticket) (*gemini.SimilarityResult, error)
}

// RecentLister provides the bounded recent-ticket window the third tier
// compares against.
type RecentLister interface {
	ListRecent(ctx context.Context, window time.Duration, limit int) ([]ticketing.Ticket, error)
}

// Classifier implements the three-tier duplicate detection.
type Classifier struct {
	store      *correlation.Store
	judge      SimilarityJudge
	recent     RecentLister
	threshold  float64
	lookback   time.Duration
	maxTickets int
	logger     *slog.Logger
}

// NewClassifier creates a duplicate classifier. threshold bounds the
// similarity tier's confidence; lookback and maxTickets bound its
// comparison window.
func NewClassifier(
	store *correlation.Store,
	judge SimilarityJudge,
	recent RecentLister,
	threshold float64,
	lookback time.Duration,
	maxTickets int,
	logger *slog.Logger,
) *Classifier {
	return &Classifier{
		store:      store,
		judge:      judge,
		recent:     recent,
		threshold:  threshold,
		lookback:   lookback,
		maxTickets: maxTickets,
		logger:     logger.With("component", "dedup_classifier"),
	}
}

// Classify runs the tiers in order, short-circuiting on the first
// conclusive answer. Failures in the first two tiers are fatal for the
// message because defaulting there risks a duplicate ticket; a failure in
// the similarity tier degrades to Unique, since a missed duplicate is
// recoverable by the correlation tier on the next delivery while a false
// positive would silently drop a real request.
func (c *Classifier) Classify(ctx context.Context, msg chat.Message) (*Result, error) {
	// Tier 1: pattern match against our own confirmation markers. This
	// breaks the feedback loop where notifications re-enter the stream.
	if isEcho(msg.Text) {
		c.logger.InfoContext(ctx, "Message identified as system echo",
			"message_id", msg.MessageID)
		return &Result{
			Kind:   DuplicateEcho,
			Reason: "message contains ticket confirmation or notification content",
		}, nil
	}

	// Tier 2: correlation lookup makes re-delivery idempotent.
	rec, err := c.store.Lookup(ctx, msg.MessageID)
	if err != nil {
		return nil, fmt.Errorf("correlation tier failed for message %s: %w", msg.MessageID, err)
	}
	if rec != nil {
		c.logger.InfoContext(ctx, "Message already correlated with ticket",
			"message_id", msg.MessageID, "ticket_number", rec.TicketNumber)
		return &Result{
			Kind:         DuplicateCorrelated,
			Reason:       fmt.Sprintf("message already has ticket %s", rec.TicketNumber),
			TicketID:     rec.TicketID,
			TicketNumber: rec.TicketNumber,
		}, nil
	}

	// Tier 3: probabilistic similarity over the recent-ticket window.
	recent, err := c.recent.ListRecent(ctx, c.lookback, c.maxTickets)
	if err != nil {
		c.logger.WarnContext(ctx, "Recent ticket listing failed, treating message as unique",
			"message_id", msg.MessageID, "error", err)
		return &Result{Kind: Unique, Reason: "similarity tier degraded: recent tickets unavailable"}, nil
	}
	if len(recent) == 0 {
		return &Result{Kind: Unique, Reason: "no recent tickets to compare against"}, nil
	}

	judged, err := c.judge.JudgeSimilarity(ctx, msg, recent)
	if err != nil {
		c.logger.WarnContext(ctx, "Similarity judgement failed, treating message as unique",
			"message_id", msg.MessageID, "error", err)
		return &Result{Kind: Unique, Reason: "similarity tier degraded: judgement unavailable"}, nil
	}

	if judged.IsDuplicate && judged.Confidence >= c.threshold {
		c.logger.InfoContext(ctx, "Message judged similar to recent ticket",
			"message_id", msg.MessageID,
			"similar_ticket", judged.SimilarTicket,
			"confidence", judged.Confidence)
		return &Result{
			Kind:         DuplicateCorrelated,
			Reason:       judged.Reasoning,
			TicketNumber: judged.SimilarTicket,
			TicketID:     ticketIDFor(recent, judged.SimilarTicket),
		}, nil
	}

	return &Result{Kind: Unique, Reason: "no duplicate detected"}, nil
}

func ticketIDFor(tickets []ticketing.Ticket, number string) string {
	for _, t := range tickets {
		if t.Number == number {
			return t.SysID
		}
	}
	return ""
}
