package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrThreadExpired reports that the server no longer knows the thread id
// (404 on the stream endpoint). It is the only failure the controller
// recovers from.
var ErrThreadExpired = errors.New("thread expired")

// RequestError is any non-success response other than an expired thread.
// Message carries the server-provided error text when there is one.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// MalformedResponseError reports a response that succeeded at the transport
// level but lacks a required field. It is fatal for the attempt.
type MalformedResponseError struct {
	Field string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: missing %s", e.Field)
}

// IsCancelled reports whether err is the caller aborting the request.
// Cancellation is absorbed by the controller, never surfaced to the user.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
