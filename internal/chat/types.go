package chat

import "time"

// Message represents an incoming message observed in a chat space.
// Immutable once observed; the upstream transport may deliver the same
// message (same MessageID) more than once.
type Message struct {
	MessageID string
	ThreadID  string
	UserID    string
	UserName  string
	Text      string
	SpaceID   string
	CreatedAt time.Time
}

// PostRequest addresses an outgoing message. Exactly one addressing mode
// applies: ThreadID targets a thread, QuotedMessageID quotes a message in
// the space, and neither set means an untargeted space message.
type PostRequest struct {
	SpaceID         string
	ThreadID        string
	QuotedMessageID string
	Text            string
}
