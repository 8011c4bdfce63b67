// CLAUDE:SUMMARY Resolver orchestrator: resolve, dereference, describe, version observation, named-locator registry with outcome reports.
// Package locator resolves declarative element locators against immutable
// DOM snapshots and keeps the resulting handles valid across page
// mutations.
//
// A Locator combines strategies (attribute, tag, text, css-like path,
// relative) with all-of or any-of. Resolve scores every matching node,
// classifies the outcome (unique, low-confidence, ambiguous, not found)
// and returns a Handle. Dereference revalidates a Handle against a newer
// snapshot by fingerprint and re-resolves it transparently when the
// element changed.
//
// Usage:
//
//	r, err := locator.New(cfg, logger)
//	defer r.Close()
//	src.OnMutation(r.ObserveVersion)
//	h, err := r.Resolve(ctx, locator.All(locator.AttributeEquals("data-testid", "submit")), snap)
//	node, h, err := r.Dereference(ctx, h, nextSnap)
package locator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/locator/internal/handle"
	"github.com/hazyhaar/domlocator/locator/internal/store"
)

// Resolver is the entry point of the package. It is safe for concurrent
// use.
type Resolver struct {
	cfg      *Config
	tracker  *handle.Tracker
	store    *store.Store
	provider SnapshotProvider
	metrics  *Metrics
	logger   *slog.Logger
	ops      *operations
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithProvider sets the snapshot source used by the *Current operations,
// the MCP tools and the HTTP API when a request carries no markup.
func WithProvider(p SnapshotProvider) Option { return func(r *Resolver) { r.provider = p } }

// WithMetrics records resolutions in m.
func WithMetrics(m *Metrics) Option { return func(r *Resolver) { r.metrics = m } }

// New creates a Resolver. When cfg.DBPath is set the named-locator
// registry database is opened (and created if needed).
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Resolver, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	env, err := cfg.env()
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		cfg: cfg,
		tracker: handle.New(handle.Options{
			Env:          env,
			Rank:         cfg.rankOptions(),
			DisableCache: !*cfg.Cache.Enabled,
			MaxEntries:   cfg.Cache.MaxEntries,
			Logger:       logger,
		}),
		logger: logger,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics != nil {
		r.metrics.watch(r.tracker)
	}

	if cfg.DBPath != "" {
		s, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("locator: open registry: %w", err)
		}
		r.store = s
	}
	r.ops = r.buildOperations()
	return r, nil
}

// Close releases the registry database, if any.
func (r *Resolver) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// Config returns the effective configuration, defaults applied.
func (r *Resolver) Config() *Config { return r.cfg }

// Stats returns the tracker counters.
func (r *Resolver) Stats() Stats { return r.tracker.Stats() }

// Resolve finds the single element l designates in snap.
//
// It fails with ErrInvalidStrategy (malformed locator, or a relative
// anchor matching nothing), ErrElementNotFound or ErrAmbiguousMatch. A
// lone match below the confidence threshold succeeds with
// Handle.LowConfidence set.
func (r *Resolver) Resolve(ctx context.Context, l Locator, snap *dom.Snapshot) (*Handle, error) {
	h, _, err := r.resolve(ctx, l, snap)
	return h, err
}

func (r *Resolver) resolve(ctx context.Context, l Locator, snap *dom.Snapshot) (*Handle, Result, error) {
	start := time.Now()
	h, res, err := r.tracker.Resolve(ctx, l, snap)
	r.metrics.observeResolve(outcomeLabel(res, err), time.Since(start))
	return h, res, err
}

// Dereference returns the element h designates in snap, together with the
// handle to keep using: h itself (refreshed) when the element is
// unchanged, or a new handle when h had to be re-resolved. It fails with
// ErrHandleLost, wrapping the re-resolution error, when the element can no
// longer be found.
func (r *Resolver) Dereference(ctx context.Context, h *Handle, snap *dom.Snapshot) (*dom.Node, *Handle, error) {
	n, next, err := r.tracker.Dereference(ctx, h, snap)
	switch {
	case errors.Is(err, ErrHandleLost):
		r.metrics.observeDereference("lost")
	case err != nil:
		r.metrics.observeDereference("error")
	case next.ID == h.ID:
		r.metrics.observeDereference("fast")
	default:
		r.metrics.observeDereference("reresolved")
	}
	return n, next, err
}

// ObserveVersion records a version bump of the configured page. It has the
// signature MutationSource.OnMutation expects.
func (r *Resolver) ObserveVersion(version uint64) {
	r.tracker.Observe(r.cfg.PageID, version)
}

// Observe records that page reached version. Cached resolutions for older
// versions of page are discarded.
func (r *Resolver) Observe(page string, version uint64) {
	r.tracker.Observe(page, version)
}

// ResolveCurrent resolves l against the provider's current snapshot.
func (r *Resolver) ResolveCurrent(ctx context.Context, l Locator) (*Handle, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, l, snap)
}

// DereferenceCurrent dereferences h against the provider's current
// snapshot.
func (r *Resolver) DereferenceCurrent(ctx context.Context, h *Handle) (*dom.Node, *Handle, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return nil, nil, err
	}
	return r.Dereference(ctx, h, snap)
}

func (r *Resolver) current(ctx context.Context) (*dom.Snapshot, error) {
	if r.provider == nil {
		return nil, ErrNoProvider
	}
	snap, err := r.provider.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("locator: snapshot: %w", err)
	}
	return snap, nil
}

// --- Named locators ---

// NamedLocator is a locator to save in the registry.
type NamedLocator struct {
	Name        string  `json:"name"`
	PageID      string  `json:"page_id,omitempty"`
	Description string  `json:"description,omitempty"`
	Locator     Locator `json:"locator"`
}

// SaveLocator validates nl.Locator and stores it under nl.Name, replacing
// any previous definition with that name.
func (r *Resolver) SaveLocator(ctx context.Context, nl NamedLocator) (*SavedLocator, error) {
	if r.store == nil {
		return nil, ErrNoRegistry
	}
	if err := nl.Locator.Validate(); err != nil {
		return nil, err
	}
	l := nl.Locator
	l.Name = nl.Name
	def, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("locator: encode %q: %w", nl.Name, err)
	}
	saved := &store.Locator{
		Name:        nl.Name,
		PageID:      nl.PageID,
		Definition:  string(def),
		Hash:        l.Hash(),
		Description: nl.Description,
	}
	if err := r.store.SaveLocator(ctx, saved); err != nil {
		return nil, err
	}
	r.logger.Info("locator: saved", "name", saved.Name, "hash", saved.Hash, "locator", l.Describe())
	return saved, nil
}

// LoadLocator returns the locator saved under name.
func (r *Resolver) LoadLocator(ctx context.Context, name string) (Locator, *SavedLocator, error) {
	if r.store == nil {
		return Locator{}, nil, ErrNoRegistry
	}
	saved, err := r.store.GetLocatorByName(ctx, name)
	if err != nil {
		return Locator{}, nil, err
	}
	if saved == nil {
		return Locator{}, nil, fmt.Errorf("%w: %q", ErrUnknownLocator, name)
	}
	l, err := ParseLocator([]byte(saved.Definition))
	if err != nil {
		return Locator{}, nil, fmt.Errorf("locator: stored definition of %q: %w", name, err)
	}
	return l, saved, nil
}

// ListLocators returns saved locators, optionally for one page only.
func (r *Resolver) ListLocators(ctx context.Context, pageID string, limit int) ([]*SavedLocator, error) {
	if r.store == nil {
		return nil, ErrNoRegistry
	}
	return r.store.ListLocators(ctx, pageID, limit)
}

// DeleteLocator removes a saved locator and its resolution history.
func (r *Resolver) DeleteLocator(ctx context.Context, name string) error {
	if r.store == nil {
		return ErrNoRegistry
	}
	ok, err := r.store.DeleteLocator(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLocator, name)
	}
	r.logger.Info("locator: deleted", "name", name)
	return nil
}

// ResolveNamed resolves the locator saved under name and records the
// outcome in its history.
func (r *Resolver) ResolveNamed(ctx context.Context, name string, snap *dom.Snapshot) (*Handle, error) {
	if snap == nil {
		return nil, fmt.Errorf("locator: resolve %q: nil snapshot", name)
	}
	l, saved, err := r.LoadLocator(ctx, name)
	if err != nil {
		return nil, err
	}
	h, res, err := r.resolve(ctx, l, snap)

	rep := &store.Resolution{
		LocatorID:  saved.ID,
		PageID:     snap.PageID,
		Version:    snap.Version,
		Outcome:    outcomeLabel(res, err),
		Candidates: len(res.Candidates),
	}
	if err != nil {
		rep.Error = err.Error()
	} else {
		rep.NodeID = int64(h.NodeID)
		rep.XPath = snap.XPath(h.NodeID)
		rep.Confidence = h.Confidence
	}
	r.metrics.observeNamed(name, rep.Outcome)
	if rerr := r.store.RecordResolution(ctx, rep); rerr != nil {
		// The resolution itself stands; only its report is lost.
		r.logger.Warn("locator: record resolution failed", "name", name, "error", rerr)
	}
	return h, err
}

// History returns the latest resolution reports of a saved locator.
func (r *Resolver) History(ctx context.Context, name string, limit int) ([]*Resolution, error) {
	_, saved, err := r.LoadLocator(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.store.ListResolutions(ctx, saved.ID, limit)
}

// RegistryStats summarises the tracker counters and the registry size.
type RegistryStats struct {
	Tracker     Stats `json:"tracker"`
	Locators    int   `json:"locators"`
	Resolutions int   `json:"resolutions"`
}

// Summary returns the tracker counters, plus registry counts when a
// registry is configured.
func (r *Resolver) Summary(ctx context.Context) (*RegistryStats, error) {
	s := &RegistryStats{Tracker: r.Stats()}
	if r.store == nil {
		return s, nil
	}
	var err error
	if s.Locators, err = r.store.CountLocators(ctx); err != nil {
		return nil, err
	}
	if s.Resolutions, err = r.store.CountResolutions(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// outcomeLabel names the outcome of a resolution for metrics and reports.
func outcomeLabel(res Result, err error) string {
	switch {
	case res.Outcome != "":
		return string(res.Outcome)
	case errors.Is(err, ErrInvalidStrategy):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case err != nil:
		return "error"
	}
	return "unknown"
}
