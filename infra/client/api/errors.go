package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is reported for 401 responses: the token is missing, invalid or expired.
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	// ErrUnavailable is reported while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("api: unavailable")
)

// Error is a non-2xx response from the API.
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Message)
	}
	return fmt.Sprintf("api %s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (b errorBody) text() string {
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}
