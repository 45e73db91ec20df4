package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatdesk/chatdesk/internal/chat"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

func TestConfirmationText(t *testing.T) {
	t.Parallel()

	ticket := &ticketing.Ticket{
		SysID:            "sys-1",
		Number:           "INC0012345",
		ShortDescription: "VPN connection drops",
		Priority:         "3",
	}
	msg := chat.Message{
		UserName: "Jane Doe",
		Text:     strings.Repeat("my vpn keeps dropping ", 20),
	}

	text := ConfirmationText(ticket, "https://example.service-now.com/view", msg)

	assert.Contains(t, text, "✅ **Ticket Created Successfully**")
	assert.Contains(t, text, "[INC0012345](https://example.service-now.com/view)")
	assert.Contains(t, text, "**Priority:** 3")
	assert.Contains(t, text, "**Status:**")
	assert.Contains(t, text, "[View Ticket](https://example.service-now.com/view)")
	// The quoted original message is truncated, not echoed in full.
	assert.NotContains(t, text, msg.Text)
}

func TestStatusUpdateText(t *testing.T) {
	t.Parallel()

	ticket := &ticketing.Ticket{
		SysID:            "sys-1",
		Number:           "INC0012345",
		ShortDescription: "VPN connection drops",
	}

	text := StatusUpdateText(ticket, "https://example.service-now.com/view", "Resolved")

	assert.Contains(t, text, "**Ticket Status Update**")
	assert.Contains(t, text, "[INC0012345](https://example.service-now.com/view)")
	assert.Contains(t, text, "**Status:** Resolved")
}
