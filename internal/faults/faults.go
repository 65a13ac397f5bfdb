// Package faults holds the error vocabulary shared by every external
// collaborator client (telephony, classifier, speech, coverage, CRM).
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport marks a failure to reach a collaborator or a retriable
	// response from it (5xx, 429, timeouts).
	ErrTransport = errors.New("transport failure")
	// ErrMalformed marks a response that arrived but could not be understood.
	ErrMalformed = errors.New("malformed response")
	// ErrNotConfigured is returned by clients that were built without a base URL.
	ErrNotConfigured = errors.New("collaborator not configured")
)

// Transport wraps err as a transport failure for operation op.
func Transport(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// Malformed wraps err as a malformed-response failure for operation op.
func Malformed(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrMalformed, err)
}

// Status converts a non-2xx HTTP status into an error.
// 5xx and 429 count as transport failures, everything else as malformed.
func Status(op string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := fmt.Errorf("unexpected status %d", code)
	if code >= 500 || code == http.StatusTooManyRequests {
		return Transport(op, err)
	}
	return Malformed(op, err)
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }
