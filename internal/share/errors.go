package share

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the record (or locator) does not exist.
	ErrNotFound = errors.New("share not found")
	// ErrExpired means the share's TTL has elapsed.
	ErrExpired = errors.New("share link expired")
	// ErrWrongPassword means the supplied password did not match.
	ErrWrongPassword = errors.New("incorrect password")
	// ErrBudgetExhausted means no downloads remain, including the terminal flag.
	ErrBudgetExhausted = errors.New("download limit reached")
	// ErrLocatorTaken is returned by RecordStore.Insert on a locator
	// uniqueness conflict so the engine can retry with a fresh token.
	ErrLocatorTaken = errors.New("locator already in use")
)

// ValidationError describes a malformed creation parameter. It names the
// offending field so the transport layer can render a precise message.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
