package notify

import (
	"fmt"
	"strings"

	"github.com/chatdesk/chatdesk/internal/chat"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

// ConfirmationText builds the creation confirmation posted back to the
// requester. The bold markers and the "Ticket Number:" label are the
// structural fingerprint the duplicate classifier's pattern tier keys on;
// changing the wording here requires updating internal/dedup/patterns.go.
func ConfirmationText(ticket *ticketing.Ticket, link string, msg chat.Message) string {
	var sb strings.Builder

	sb.WriteString("✅ **Ticket Created Successfully**\n\n")
	fmt.Fprintf(&sb, "**From:** %s\n", msg.UserName)
	fmt.Fprintf(&sb, "**Ticket Number:** [%s](%s)\n", ticket.Number, link)
	fmt.Fprintf(&sb, "**Title:** %s\n", ticket.ShortDescription)
	fmt.Fprintf(&sb, "**Priority:** %s\n", ticket.Priority)
	sb.WriteString("**Status:** In Progress\n\n")
	fmt.Fprintf(&sb, "**Original Message:** %q\n\n", truncate(msg.Text, 100))
	sb.WriteString("Your request has been automatically processed and assigned to the appropriate team. ")
	sb.WriteString("You'll receive updates as the ticket progresses.\n\n")
	fmt.Fprintf(&sb, "[View Ticket](%s)", link)

	return sb.String()
}

// StatusUpdateText builds the status-change notification sent when a
// tracked ticket moves to a new state.
func StatusUpdateText(ticket *ticketing.Ticket, link, state string) string {
	var sb strings.Builder

	sb.WriteString("🔔 **Ticket Status Update**\n\n")
	fmt.Fprintf(&sb, "**Ticket Number:** [%s](%s)\n", ticket.Number, link)
	fmt.Fprintf(&sb, "**Title:** %s\n", ticket.ShortDescription)
	fmt.Fprintf(&sb, "**Status:** %s\n\n", state)
	fmt.Fprintf(&sb, "[View Ticket](%s)", link)

	return sb.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
