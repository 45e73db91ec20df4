package dedup

import (
	"regexp"
	"strings"
)

// echoPatterns are structural markers that only ChatDesk's own confirmation
// and status messages contain. A match means the message is the system's
// own output re-observed as input, and must never create a ticket. The
// notification formatter in internal/notify emits these markers; keep the
// two in sync.
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\*\*Ticket Created Successfully\*\*`),
	regexp.MustCompile(`\*\*Ticket Status Update\*\*`),
	regexp.MustCompile(`Ticket Number:.*INC\d+`),
	regexp.MustCompile(`View Ticket`),
	regexp.MustCompile(`(?m)^\s*\*\*Priority:\*\* \d`),
	regexp.MustCompile(`(?m)^\s*\*\*Status:\*\*`),
}

// echoPhrases are fixed confirmation phrases checked case-insensitively.
var echoPhrases = []string{
	"ticket created successfully",
	"ticket number:",
	"your request has been automatically processed",
	"ticket has been created",
	"view ticket",
}

// isEcho reports whether the text is one of the system's own confirmation
// messages.
func isEcho(text string) bool {
	for _, p := range echoPatterns {
		if p.MatchString(text) {
			return true
		}
	}

	lower := strings.ToLower(text)
	for _, phrase := range echoPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
