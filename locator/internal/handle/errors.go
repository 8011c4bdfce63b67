package handle

import (
	"errors"
	"fmt"
)

// ErrHandleLost: a stale handle could not be re-resolved.
var ErrHandleLost = errors.New("handle lost")

// HandleLostError wraps the error of the failed fallback resolution, so
// errors.Is also matches ErrElementNotFound, ErrAmbiguousMatch or
// ErrInvalidStrategy underneath.
type HandleLostError struct {
	HandleID string
	Locator  string
	NodeID   int64
	Cause    error
}

func (e *HandleLostError) Error() string {
	return fmt.Sprintf("handle lost: %s (was node %d): %v", e.Locator, e.NodeID, e.Cause)
}

func (e *HandleLostError) Is(target error) bool { return target == ErrHandleLost }

func (e *HandleLostError) Unwrap() error { return e.Cause }
