package tasks

import (
	"context"
	"fmt"
	"time"
)

// processMessagesTimeout bounds one full pipeline run including all AI
// calls and notifications.
const processMessagesTimeout = 5 * time.Minute

// newProcessMessagesTask creates the scheduled task that runs the message
// processing pipeline over the current lookback window.
func newProcessMessagesTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "process_messages")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled message processing run...")

		runCtx, cancel := context.WithTimeout(ctx, processMessagesTimeout)
		defer cancel()

		report, err := deps.Pipeline.Run(runCtx)
		if err != nil {
			log.ErrorContext(ctx, "Message processing run failed", "error", err)
			return fmt.Errorf("message processing run failed: %w", err)
		}

		log.InfoContext(ctx, "Message processing run completed",
			"run_id", report.RunID.String(),
			"fetched", report.Fetched,
			"created", len(report.Created),
			"duplicates", len(report.Duplicates),
			"skipped", report.Skipped,
			"failures", len(report.Failures))

		if len(report.Failures) > 0 {
			return fmt.Errorf("message processing run %s finished with %d failed messages", report.RunID, len(report.Failures))
		}
		return nil
	}
}
