package locator

import (
	"context"
	"errors"
	"time"

	"github.com/hazyhaar/domlocator/dom"
)

// SnapshotProvider supplies the current snapshot of a page.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*dom.Snapshot, error)
}

// MutationSource notifies version bumps of a page. Resolvers never
// subscribe on their own; wire src.OnMutation(r.ObserveVersion).
type MutationSource interface {
	OnMutation(fn func(version uint64))
}

// DefaultPollInterval is used by Poll when interval is not positive.
const DefaultPollInterval = 250 * time.Millisecond

// Poll resolves l against fresh snapshots from p every interval until the
// match is unique and confident, or ctx ends. When ctx ends it returns the
// low-confidence handle of the latest attempt if it produced one, otherwise
// the last error (or ctx.Err() when nothing was tried). Invalid locators fail at once.
func Poll(ctx context.Context, r *Resolver, p SnapshotProvider, l Locator, interval time.Duration) (*Handle, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	var last *Handle
	var lastErr error
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, err := p.Snapshot(ctx)
		if err == nil {
			var h *Handle
			h, err = r.Resolve(ctx, l, snap)
			switch {
			case err == nil && !h.LowConfidence:
				return h, nil
			case err == nil:
				last = h
			case errors.Is(err, ErrInvalidStrategy):
				// An anchor can appear later; a malformed strategy cannot.
				var ise *InvalidStrategyError
				if !errors.As(err, &ise) || !ise.AnchorMissing {
					return nil, err
				}
			}
		}
		if err != nil && ctx.Err() == nil {
			// A weak match from an earlier snapshot no longer describes
			// the page.
			last, lastErr = nil, err
		}

		select {
		case <-ctx.Done():
			if last != nil {
				return last, nil
			}
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
