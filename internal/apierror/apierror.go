// Package apierror classifies failures from external HTTP APIs into the
// two classes the pipeline cares about: transient faults worth retrying
// and permission/configuration faults that must surface immediately.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransient marks network-level failures and 5xx responses. Safe to
// retry with backoff.
var ErrTransient = errors.New("transient API error")

// ErrPermission marks 4xx responses: authentication, authorization, or a
// malformed request. Retrying cannot help; the error must surface.
var ErrPermission = errors.New("permission or configuration error")

// FromStatus classifies an HTTP status code into the error taxonomy.
// Returns nil for 2xx codes.
func FromStatus(op string, status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: %s returned %d %s: %s", ErrPermission, op, status, http.StatusText(status), body)
	default:
		return fmt.Errorf("%w: %s returned %d %s: %s", ErrTransient, op, status, http.StatusText(status), body)
	}
}

// Wrap classifies a transport-level error (DNS, connection reset, timeout)
// as transient.
func Wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermission reports whether err indicates a permission or configuration
// problem.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}
