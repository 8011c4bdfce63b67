package locator

import (
	"github.com/hazyhaar/domlocator/locator/internal/handle"
	"github.com/hazyhaar/domlocator/locator/internal/policy"
	"github.com/hazyhaar/domlocator/locator/internal/rank"
	"github.com/hazyhaar/domlocator/locator/internal/store"
	"github.com/hazyhaar/domlocator/locator/internal/strategy"
)

// Re-exported types from the internal packages.
type (
	Strategy   = strategy.Strategy
	Locator    = strategy.Locator
	Kind       = strategy.Kind
	Relation   = strategy.Relation
	Combinator = strategy.Combinator
	Weights    = strategy.Weights

	Handle    = handle.Handle
	Stats     = handle.Stats
	Result    = rank.Result
	Candidate = rank.Candidate
	Outcome   = rank.Outcome

	Policy       = policy.Policy
	PolicyConfig = policy.Config

	SavedLocator = store.Locator
	Resolution   = store.Resolution
)

const (
	KindAttributeEquals   = strategy.KindAttributeEquals
	KindAttributeContains = strategy.KindAttributeContains
	KindTagEquals         = strategy.KindTagEquals
	KindTextEquals        = strategy.KindTextEquals
	KindTextContains      = strategy.KindTextContains
	KindCSSPath           = strategy.KindCSSPath
	KindRelative          = strategy.KindRelative

	RelParent          = strategy.RelParent
	RelChild           = strategy.RelChild
	RelNextSibling     = strategy.RelNextSibling
	RelPreviousSibling = strategy.RelPreviousSibling
	RelAncestor        = strategy.RelAncestor
	RelDescendant      = strategy.RelDescendant

	AllOf = strategy.AllOf
	AnyOf = strategy.AnyOf

	Unique              = rank.Unique
	LowConfidenceUnique = rank.LowConfidenceUnique
	Ambiguous           = rank.Ambiguous
	NotFound            = rank.NotFound
)

// Strategy and locator constructors.
var (
	AttributeEquals   = strategy.AttributeEquals
	AttributeContains = strategy.AttributeContains
	TagEquals         = strategy.TagEquals
	TextEquals        = strategy.TextEquals
	TextContains      = strategy.TextContains
	CSSPath           = strategy.CSSPath
	Relative          = strategy.Relative
	All               = strategy.All
	Any               = strategy.Any

	ParseLocator  = strategy.ParseLocator
	ParseCSSPath  = strategy.ParseCSSPath
	DefaultPolicy = policy.Default
	NewPolicy     = policy.New
)
