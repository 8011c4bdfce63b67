package locator

import (
	"errors"

	"github.com/hazyhaar/domlocator/locator/internal/handle"
	"github.com/hazyhaar/domlocator/locator/internal/rank"
	"github.com/hazyhaar/domlocator/locator/internal/strategy"
)

// Resolution failures. Use errors.Is against the sentinels and errors.As
// against the typed errors for details.
var (
	ErrInvalidStrategy = strategy.ErrInvalidStrategy
	ErrElementNotFound = rank.ErrElementNotFound
	ErrAmbiguousMatch  = rank.ErrAmbiguousMatch
	ErrHandleLost      = handle.ErrHandleLost
)

type (
	InvalidStrategyError = strategy.InvalidStrategyError
	NotFoundError        = rank.NotFoundError
	AmbiguousError       = rank.AmbiguousError
	HandleLostError      = handle.HandleLostError
)

var (
	// ErrNoProvider is returned by the *Current operations when the
	// Resolver has no SnapshotProvider.
	ErrNoProvider = errors.New("locator: no snapshot provider configured")
	// ErrNoRegistry is returned by named-locator operations when no
	// registry database is configured.
	ErrNoRegistry = errors.New("locator: no locator registry configured")
	// ErrUnknownLocator: no locator is saved under the requested name.
	ErrUnknownLocator = errors.New("locator: unknown named locator")
)
