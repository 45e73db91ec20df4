// Package notify delivers confirmations to the originating conversation
// through a three-tier fallback state machine: reply in the original
// thread, then a quoted reply in the space, then an untargeted space
// message. Tiers advance strictly forward and no tier is retried, so at
// most one delivery can succeed.
package notify

import (
	"context"
	"log/slog"

	"github.com/chatdesk/chatdesk/internal/chat"
)

// Tier identifies one fallback strategy within the delivery state machine.
type Tier string

const (
	TierThread Tier = "THREAD"
	TierQuote  Tier = "QUOTE"
	TierSpace  Tier = "SPACE"
)

// tierOrder is the full fallback sequence. Any delivery's attempt list is
// a prefix of it.
var tierOrder = []Tier{TierThread, TierQuote, TierSpace}

// Attempt records one tier's outcome.
type Attempt struct {
	Tier Tier
	Err  error
}

// Outcome is the terminal result of a dispatch. Exactly one of Delivered
// or exhausted-failure holds; the dispatcher never returns without a
// recorded outcome.
type Outcome struct {
	Delivered bool
	Tier      Tier
	Attempts  []Attempt
}

// Poster is the conversation-notification capability all three tiers share,
// with different addressing per tier.
type Poster interface {
	Post(ctx context.Context, req chat.PostRequest) error
}

// Target addresses the conversation context a notification belongs to.
type Target struct {
	SpaceID   string
	ThreadID  string
	MessageID string
}

// Dispatcher runs the delivery state machine.
type Dispatcher struct {
	poster Poster
	logger *slog.Logger
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(poster Poster, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		poster: poster,
		logger: logger.With("component", "notify_dispatcher"),
	}
}

// Dispatch attempts delivery tier by tier. Each tier is tried at most
// once; failure advances to the next tier, success terminates. A tier
// whose addressing context is missing (no thread, no quotable message)
// fails without a network call and advances. Context cancellation between
// tiers stops the machine, but an in-flight post is never abandoned
// without its outcome being recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, target Target, text string) Outcome {
	outcome := Outcome{}

	for _, tier := range tierOrder {
		if err := ctx.Err(); err != nil && len(outcome.Attempts) > 0 {
			// Cancellation between tiers: stop advancing, the
			// attempts so far are the recorded outcome.
			d.logger.WarnContext(ctx, "Dispatch cancelled between tiers",
				"space_id", target.SpaceID, "tiers_attempted", len(outcome.Attempts))
			break
		}

		err := d.attempt(ctx, tier, target, text)
		outcome.Attempts = append(outcome.Attempts, Attempt{Tier: tier, Err: err})

		if err == nil {
			outcome.Delivered = true
			outcome.Tier = tier
			d.logger.InfoContext(ctx, "Notification delivered",
				"space_id", target.SpaceID, "tier", tier)
			return outcome
		}

		d.logger.WarnContext(ctx, "Notification tier failed, advancing",
			"space_id", target.SpaceID, "tier", tier, "error", err)
	}

	d.logger.ErrorContext(ctx, "Notification delivery exhausted all tiers",
		"space_id", target.SpaceID, "thread_id", target.ThreadID)
	return outcome
}

func (d *Dispatcher) attempt(ctx context.Context, tier Tier, target Target, text string) error {
	switch tier {
	case TierThread:
		if target.ThreadID == "" {
			return errNoThreadContext
		}
		return d.poster.Post(ctx, chat.PostRequest{
			SpaceID:  target.SpaceID,
			ThreadID: target.ThreadID,
			Text:     text,
		})

	case TierQuote:
		if target.MessageID == "" {
			return errNoQuoteContext
		}
		return d.poster.Post(ctx, chat.PostRequest{
			SpaceID:         target.SpaceID,
			QuotedMessageID: target.MessageID,
			Text:            text,
		})

	default:
		return d.poster.Post(ctx, chat.PostRequest{
			SpaceID: target.SpaceID,
			Text:    text,
		})
	}
}
