package database

import "time"

// CorrelationRecord is the durable link between an originating chat message
// and the ticket it produced. At most one record exists per message ID;
// records are written exactly once at ticket creation time and never mutated.
type CorrelationRecord struct {
	ID           uint      `db:"id"`
	MessageID    string    `db:"message_id"`
	TicketID     string    `db:"ticket_id"`
	TicketNumber string    `db:"ticket_number"`
	CreatedAt    time.Time `db:"created_at"`
}

// TrackedTicket is a read-mostly projection of a ticket whose status the
// tracker task follows so that state changes can be reported back to the
// originating conversation.
type TrackedTicket struct {
	ID           uint      `db:"id"`
	TicketID     string    `db:"ticket_id"`
	TicketNumber string    `db:"ticket_number"`
	MessageID    string    `db:"message_id"`
	SpaceID      string    `db:"space_id"`
	ThreadID     string    `db:"thread_id"`
	State        string    `db:"state"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
