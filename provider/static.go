package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/mutation"
)

// Static serves whatever snapshot the caller last handed it.
type Static struct {
	mu   sync.RWMutex
	snap *dom.Snapshot
	subs listeners
}

// NewStatic returns a provider serving snap, which may be nil.
func NewStatic(snap *dom.Snapshot) *Static {
	return &Static{snap: snap}
}

// Snapshot returns the current snapshot.
func (p *Static) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snap == nil {
		return nil, ErrNoSnapshot
	}
	return p.snap, nil
}

// Set replaces the snapshot. A snapshot whose version does not move past
// the current one is re-stamped with current+1.
func (p *Static) Set(snap *dom.Snapshot) *dom.Snapshot {
	p.mu.Lock()
	if p.snap != nil && snap.Version <= p.snap.Version {
		snap = snap.WithVersion(p.snap.Version + 1)
	}
	p.snap = snap
	p.mu.Unlock()

	p.subs.notify(snap.Version)
	return snap
}

// Apply applies a mutation batch to the current snapshot.
func (p *Static) Apply(batch *mutation.Batch) (*dom.Snapshot, error) {
	p.mu.Lock()
	if p.snap == nil {
		p.mu.Unlock()
		return nil, ErrNoSnapshot
	}
	next, err := dom.Apply(p.snap, batch)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("provider: apply batch %s: %w", batch.ID, err)
	}
	p.snap = next
	p.mu.Unlock()

	p.subs.notify(next.Version)
	return next, nil
}

// OnMutation registers fn to be called with every new version.
func (p *Static) OnMutation(fn func(version uint64)) { p.subs.add(fn) }
