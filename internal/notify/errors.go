package notify

import "errors"

var (
	// errNoThreadContext marks a thread-tier attempt that could not be
	// made because the originating message carried no thread.
	errNoThreadContext = errors.New("no thread context available for threaded reply")

	// errNoQuoteContext marks a quote-tier attempt with no quotable
	// message ID.
	errNoQuoteContext = errors.New("no message context available for quoted reply")
)
