package domain

import (
	"errors"
	"fmt"
)

// ClearDatabaseConfirmation is the literal the backend requires before wiping data.
const ClearDatabaseConfirmation = "yes-clear-all-data"

var (
	ErrConfirmationRequired = errors.New("explicit confirmation required")
	ErrNotAuthenticated     = errors.New("not authenticated")
)

// TransportError is returned by the API client for network failures
// (StatusCode 0) and non-2xx responses.
type TransportError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if len(e.Body) == 0 {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
