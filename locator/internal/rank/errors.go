package rank

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrElementNotFound: no candidate met the confidence threshold.
	ErrElementNotFound = errors.New("element not found")
	// ErrAmbiguousMatch: several candidates scored within the tie band of
	// the top score.
	ErrAmbiguousMatch = errors.New("ambiguous match")
)

// NotFoundError details an ElementNotFound outcome.
type NotFoundError struct {
	Locator   string
	Threshold float64
	// Best is the highest-scoring candidate below the threshold, if any.
	Best *Candidate
}

func (e *NotFoundError) Error() string {
	if e.Best != nil {
		return fmt.Sprintf("element not found: %s (best candidate %d at %.2f, threshold %.2f)",
			e.Locator, e.Best.ID, e.Best.Confidence, e.Threshold)
	}
	return fmt.Sprintf("element not found: %s", e.Locator)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrElementNotFound }

// AmbiguousError carries the tied candidates so the caller can refine the
// locator or pick one explicitly.
type AmbiguousError struct {
	Locator    string
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	parts := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		parts[i] = fmt.Sprintf("%d@%.2f", c.ID, c.Confidence)
	}
	return fmt.Sprintf("ambiguous match: %s (%d candidates: %s)", e.Locator, len(e.Candidates), strings.Join(parts, ", "))
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguousMatch }
