// Package tasks implements the scheduled tasks that drive ChatDesk: the
// message processing run, ticket status tracking, and database upkeep.
package tasks

import (
	"log/slog"

	"github.com/chatdesk/chatdesk/internal/database"
	"github.com/chatdesk/chatdesk/internal/pipeline"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Pipeline *pipeline.Pipeline
	Tracker  *pipeline.Tracker
}
