// ABOUTME: Error taxonomy for conversation client operations
// ABOUTME: Sentinels and typed errors; every failure reaches a result value or a callback

package client

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse indicates a backend payload that violates the
// expected shape (undecodable JSON, impossible paging, truncated stream).
var ErrMalformedResponse = errors.New("malformed response")

// ValidationError reports malformed caller input, e.g. a negative offset.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError reports network failures or backend unavailability.
// Status is zero when the request never reached the backend.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error: backend returned status %d", e.Status)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
