package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/chatdesk/chatdesk/internal/chat"
	"github.com/chatdesk/chatdesk/internal/notify"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

// CreatedTicket records one message that produced a new ticket in this
// run, along with the delivery outcome of its confirmation.
type CreatedTicket struct {
	Message      chat.Message
	Ticket       *ticketing.Ticket
	Notification notify.Outcome
}

// DuplicateMessage records a message that was classified or materialized
// as a duplicate. Duplicates never produce notifications.
type DuplicateMessage struct {
	Message      chat.Message
	Kind         string
	Reason       string
	TicketNumber string
}

// Failure records a message whose processing stopped at a stage. The
// message is untouched otherwise and will be re-examined on a later run.
type Failure struct {
	MessageID string
	Stage     string
	Err       error
}

// Report summarizes one pipeline run. Created, Duplicates, and Failures
// preserve the input order of the batch.
type Report struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	Fetched    int
	Unmatched  int
	Skipped    int
	Created    []CreatedTicket
	Duplicates []DuplicateMessage
	Failures   []Failure
}
