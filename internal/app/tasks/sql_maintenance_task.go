package tasks

import (
	"context"
	"fmt"
	"time"
)

// correlationRetention is how long cached correlations are kept. The
// ticketing backend remains the system of record, so pruned entries are
// recoverable through a remote lookup.
const correlationRetention = 30 * 24 * time.Hour

// newSQLMaintenanceTask creates the scheduled task that prunes the
// correlation cache and runs database maintenance.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled SQL maintenance task...")
		startTime := time.Now()

		cutoff := time.Now().UTC().Add(-correlationRetention)
		pruned, err := deps.Store.PruneCorrelations(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Correlation cache pruning failed", "error", err)
			return fmt.Errorf("correlation pruning failed: %w", err)
		}

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "SQL maintenance task failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled SQL maintenance task completed successfully",
			"pruned_correlations", pruned, "duration", time.Since(startTime))
		return nil
	}
}
