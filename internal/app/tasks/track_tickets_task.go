package tasks

import (
	"context"
	"fmt"
	"time"
)

const trackTicketsTimeout = 3 * time.Minute

// newTrackTicketsTask creates the scheduled task that polls tracked
// tickets for state changes and posts status updates.
func newTrackTicketsTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "track_tickets")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled ticket tracking run...")

		runCtx, cancel := context.WithTimeout(ctx, trackTicketsTimeout)
		defer cancel()

		if err := deps.Tracker.TrackTickets(runCtx); err != nil {
			log.ErrorContext(ctx, "Ticket tracking run failed", "error", err)
			return fmt.Errorf("ticket tracking run failed: %w", err)
		}

		log.InfoContext(ctx, "Ticket tracking run completed")
		return nil
	}
}
