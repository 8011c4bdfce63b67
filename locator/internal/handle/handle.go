// Package handle implements the resolve, dereference, re-resolve lifecycle
// of element handles, with a resolution cache in front of the ranker.
package handle

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/idgen"
	"github.com/hazyhaar/domlocator/locator/internal/rank"
	"github.com/hazyhaar/domlocator/locator/internal/strategy"
)

// Handle is a caller-owned reference to a resolved element. It stays
// usable across snapshots: Dereference revalidates it by fingerprint and
// re-resolves its Locator when the element changed.
type Handle struct {
	ID            string           `json:"id"`
	NodeID        dom.NodeID       `json:"node_id"`
	Locator       strategy.Locator `json:"locator"`
	Fingerprint   string           `json:"fingerprint"`
	Confidence    float64          `json:"confidence"`
	LowConfidence bool             `json:"low_confidence,omitempty"`
	PageID        string           `json:"page_id"`
	Version       uint64           `json:"version"`
	LastGood      time.Time        `json:"last_good"`
}

// DefaultMaxEntries bounds the resolution cache.
const DefaultMaxEntries = 1024

// Options configure a Tracker.
type Options struct {
	Env  strategy.Env
	Rank rank.Options
	// DisableCache turns the resolution cache off.
	DisableCache bool
	MaxEntries   int
	Logger       *slog.Logger
	Now          func() time.Time
	IDs          idgen.Generator
}

// Stats are cumulative tracker counters.
type Stats struct {
	Resolutions    uint64 `json:"resolutions"`
	Failures       uint64 `json:"failures"`
	LowConfidence  uint64 `json:"low_confidence"`
	Coalesced      uint64 `json:"coalesced"`
	CacheHits      uint64 `json:"cache_hits"`
	CacheMisses    uint64 `json:"cache_misses"`
	CacheWrites    uint64 `json:"cache_writes"`
	CacheRejected  uint64 `json:"cache_rejected"`
	CacheEvictions uint64 `json:"cache_evictions"`
	CacheStale     uint64 `json:"cache_stale"`
	CacheSize      int    `json:"cache_size"`
	FastPath       uint64 `json:"fast_path"`
	StaleHandles   uint64 `json:"stale_handles"`
	LostHandles    uint64 `json:"lost_handles"`
}

// Tracker resolves locators into handles and revalidates them. It is safe
// for concurrent use; the cache is its only shared mutable state.
type Tracker struct {
	env    strategy.Env
	rank   rank.Options
	cache  *cache
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
	ids    idgen.Generator

	resolutions, failures, lowConfidence, coalesced atomic.Uint64
	cacheStale, fastPath, staleHandles, lostHandles atomic.Uint64
}

// New returns a Tracker. Zero options take defaults.
func New(opts Options) *Tracker {
	opts.Env = opts.Env.Normalised()
	if opts.Rank == (rank.Options{}) {
		opts.Rank = rank.DefaultOptions()
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IDs == nil {
		opts.IDs = idgen.Prefixed("h_", idgen.Default)
	}
	t := &Tracker{
		env:    opts.Env,
		rank:   opts.Rank,
		logger: opts.Logger,
		now:    opts.Now,
		ids:    opts.IDs,
	}
	if !opts.DisableCache {
		t.cache = newCache(opts.MaxEntries)
	}
	return t
}

// Env returns the evaluation environment.
func (t *Tracker) Env() strategy.Env { return t.env }

// RankOptions returns the classification options.
func (t *Tracker) RankOptions() rank.Options { return t.rank }

// Observe records that page reached version. Cached resolutions for older
// versions are discarded the next time they are looked up.
func (t *Tracker) Observe(page string, version uint64) {
	if t.cache != nil {
		t.cache.observe(page, version)
	}
}

// NextVersion returns a version of page newer than any seen so far and
// records it. It numbers snapshots whose caller supplied no version, so
// they never reuse a cached resolution computed for other content.
func (t *Tracker) NextVersion(page string) uint64 {
	if t.cache == nil {
		return 1
	}
	return t.cache.next(page)
}

// Resolve finds the element designated by l in snap and returns a fresh
// Handle together with the ranking. Ambiguous and not-found outcomes return
// the ranking and a typed error; a low-confidence match succeeds with
// Handle.LowConfidence set.
func (t *Tracker) Resolve(ctx context.Context, l strategy.Locator, snap *dom.Snapshot) (*Handle, rank.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, rank.Result{}, err
	}
	if snap == nil {
		return nil, rank.Result{}, fmt.Errorf("handle: resolve: nil snapshot")
	}
	if err := l.Validate(); err != nil {
		return nil, rank.Result{}, err
	}
	t.resolutions.Add(1)

	res, fp, err := t.lookup(l, snap)
	if err != nil {
		t.failures.Add(1)
		return nil, res, err
	}

	n, _ := snap.Node(res.Winner.ID)
	h := &Handle{
		ID:            t.ids(),
		NodeID:        n.ID,
		Locator:       l,
		Fingerprint:   fp,
		Confidence:    res.Winner.Confidence,
		LowConfidence: res.Outcome == rank.LowConfidenceUnique,
		PageID:        snap.PageID,
		Version:       snap.Version,
		LastGood:      t.now(),
	}
	if h.LowConfidence {
		t.lowConfidence.Add(1)
		t.logger.Warn("handle: low-confidence match",
			"locator", l.Describe(), "node", n.ID, "xpath", snap.XPath(n.ID),
			"confidence", h.Confidence, "threshold", t.rank.Threshold)
	}
	return h, res, nil
}

// lookup returns the ranking of l on snap and the winner's fingerprint,
// from the cache when a validated entry exists.
func (t *Tracker) lookup(l strategy.Locator, snap *dom.Snapshot) (rank.Result, string, error) {
	if t.cache == nil {
		return t.rankAndPrint(l, snap)
	}

	key := cacheKey{page: snap.PageID, hash: l.Hash()}
	if e, ok := t.cache.get(key, snap.Version); ok {
		if n, ok := snap.Node(e.result.Winner.ID); ok && t.env.Policy.Fingerprint(n) == e.fingerprint {
			return e.result, e.fingerprint, nil
		}
		t.cacheStale.Add(1)
		t.cache.drop(key, snap.Version)
	}

	// Concurrent resolutions of the same locator on the same snapshot share
	// one computation and one cache write.
	flight := fmt.Sprintf("%s|%p", key.hash, snap)
	v, err, shared := t.group.Do(flight, func() (any, error) {
		res, fp, err := t.rankAndPrint(l, snap)
		if err == nil {
			t.cache.put(key, cacheEntry{version: snap.Version, fingerprint: fp, result: res})
		}
		return flightResult{res, fp}, err
	})
	if shared {
		t.coalesced.Add(1)
	}
	fr := v.(flightResult)
	return fr.res, fr.fp, err
}

type flightResult struct {
	res rank.Result
	fp  string
}

func (t *Tracker) rankAndPrint(l strategy.Locator, snap *dom.Snapshot) (rank.Result, string, error) {
	res, err := rank.Resolve(l, snap, t.env, t.rank)
	if err != nil {
		return res, "", err
	}
	n, _ := snap.Node(res.Winner.ID)
	return res, t.env.Policy.Fingerprint(n), nil
}

// Dereference returns the element h designates in snap. When the node at
// h.NodeID still exists with the same fingerprint it is returned directly
// with a refreshed copy of h. Otherwise h.Locator is resolved again and a
// new Handle is returned; if that fails the error is a *HandleLostError
// wrapping the cause.
func (t *Tracker) Dereference(ctx context.Context, h *Handle, snap *dom.Snapshot) (*dom.Node, *Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if h == nil {
		return nil, nil, fmt.Errorf("handle: dereference: nil handle")
	}
	if snap == nil {
		return nil, nil, fmt.Errorf("handle: dereference: nil snapshot")
	}

	if h.PageID == snap.PageID {
		if n, ok := snap.Node(h.NodeID); ok && t.env.Policy.Fingerprint(n) == h.Fingerprint {
			t.fastPath.Add(1)
			fresh := *h
			fresh.Version = snap.Version
			fresh.LastGood = t.now()
			return n, &fresh, nil
		}
	}

	t.staleHandles.Add(1)
	t.logger.Debug("handle: stale, re-resolving",
		"handle", h.ID, "node", h.NodeID, "locator", h.Locator.Describe(),
		"page", snap.PageID, "version", snap.Version)

	nh, _, err := t.Resolve(ctx, h.Locator, snap)
	if err != nil {
		t.lostHandles.Add(1)
		t.logger.Warn("handle: lost", "handle", h.ID, "locator", h.Locator.Describe(), "error", err)
		return nil, nil, &HandleLostError{
			HandleID: h.ID,
			Locator:  h.Locator.Describe(),
			NodeID:   int64(h.NodeID),
			Cause:    err,
		}
	}
	n, _ := snap.Node(nh.NodeID)
	return n, nh, nil
}

// Stats returns the current counters.
func (t *Tracker) Stats() Stats {
	s := Stats{
		Resolutions:   t.resolutions.Load(),
		Failures:      t.failures.Load(),
		LowConfidence: t.lowConfidence.Load(),
		Coalesced:     t.coalesced.Load(),
		CacheStale:    t.cacheStale.Load(),
		FastPath:      t.fastPath.Load(),
		StaleHandles:  t.staleHandles.Load(),
		LostHandles:   t.lostHandles.Load(),
	}
	if t.cache != nil {
		cs := t.cache.stats()
		s.CacheHits, s.CacheMisses, s.CacheWrites = cs.hits, cs.misses, cs.writes
		s.CacheRejected, s.CacheEvictions, s.CacheSize = cs.rejected, cs.evictions, cs.size
	}
	return s
}
