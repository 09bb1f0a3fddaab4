package site_client

import (
	"errors"
	"fmt"
)

// ErrUnexpectedResponse is returned when a response parses but lacks the
// fields its contract promises.
var ErrUnexpectedResponse = errors.New("unexpected response")

// APIError is an application-level failure reported by the site in the
// response's "error" field.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("site error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("site error: %s", e.Message)
}

// UserMessage returns the text meant for the user, with a fallback for errors
// that did not come from the site.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
