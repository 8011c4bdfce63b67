// CLAUDE:SUMMARY Snapshot providers for the resolver: Static (caller-fed), HTTP (retrying GET + charset decoding), Rod (live CDP page).
// Package provider acquires page snapshots for the locator resolver.
//
// Every provider exposes Snapshot(ctx) and OnMutation(fn), which is all
// locator.SnapshotProvider and locator.MutationSource ask for. Versions are
// per provider and strictly increasing; listeners are told about each bump
// after the new snapshot is visible.
package provider

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNoSnapshot is returned by providers that have nothing to serve yet.
var ErrNoSnapshot = errors.New("provider: no snapshot")

// Defaults shared by the providers.
const (
	DefaultPageID    = "default"
	DefaultUserAgent = "domlocator/1.0"
	DefaultTimeout   = 30 * time.Second
	DefaultRetryMax  = 3
	DefaultMaxBody   = 10 << 20
)

type config struct {
	pageID       string
	userAgent    string
	timeout      time.Duration
	retryMax     int
	maxBody      int64
	allowPrivate bool
	logger       *slog.Logger
}

func defaults() config {
	return config{
		pageID:    DefaultPageID,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		retryMax:  DefaultRetryMax,
		maxBody:   DefaultMaxBody,
		logger:    slog.Default(),
	}
}

// Option configures a provider.
type Option func(*config)

// WithPageID sets the page id stamped on snapshots.
func WithPageID(id string) Option {
	return func(c *config) {
		if id != "" {
			c.pageID = id
		}
	}
}

// WithUserAgent sets the User-Agent header of HTTP fetches.
func WithUserAgent(ua string) Option {
	return func(c *config) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout bounds a single HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryMax sets how many times a failed fetch is retried. Negative
// disables retries.
func WithRetryMax(n int) Option {
	return func(c *config) {
		if n < 0 {
			n = 0
		}
		c.retryMax = n
	}
}

// WithMaxBody caps the size of fetched documents.
func WithMaxBody(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithAllowPrivate lets the HTTP provider reach loopback and private
// addresses. Meant for tests and trusted intranets.
func WithAllowPrivate() Option {
	return func(c *config) { c.allowPrivate = true }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// listeners fans version bumps out to OnMutation subscribers.
type listeners struct {
	mu  sync.Mutex
	fns []func(version uint64)
}

func (l *listeners) add(fn func(uint64)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
}

func (l *listeners) notify(version uint64) {
	l.mu.Lock()
	fns := append(([]func(uint64))(nil), l.fns...)
	l.mu.Unlock()
	for _, fn := range fns {
		fn(version)
	}
}
