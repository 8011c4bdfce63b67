package strategy

import (
	"errors"
	"fmt"
)

// ErrInvalidStrategy is the sentinel matched by every *InvalidStrategyError.
var ErrInvalidStrategy = errors.New("invalid strategy")

// InvalidStrategyError reports a malformed strategy, or a relative strategy
// whose anchor matched no node.
type InvalidStrategyError struct {
	Kind   Kind
	Reason string
	// AnchorMissing is set when the strategy is well-formed but its anchor
	// resolved to zero nodes.
	AnchorMissing bool
}

func (e *InvalidStrategyError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("invalid strategy: %s", e.Reason)
	}
	return fmt.Sprintf("invalid strategy %s: %s", e.Kind, e.Reason)
}

func (e *InvalidStrategyError) Is(target error) bool { return target == ErrInvalidStrategy }

func invalid(k Kind, format string, args ...any) *InvalidStrategyError {
	return &InvalidStrategyError{Kind: k, Reason: fmt.Sprintf(format, args...)}
}
