package strategy

import (
	"math"
	"strings"

	"github.com/hazyhaar/domlocator/locator/internal/policy"
)

// Weights are the per-kind confidences of a match.
type Weights struct {
	StableAttributeEquals   float64 `yaml:"stable_attribute_equals" json:"stable_attribute_equals"`
	AttributeEquals         float64 `yaml:"attribute_equals" json:"attribute_equals"`
	StableAttributeContains float64 `yaml:"stable_attribute_contains" json:"stable_attribute_contains"`
	AttributeContains       float64 `yaml:"attribute_contains" json:"attribute_contains"`
	TextEquals              float64 `yaml:"text_equals" json:"text_equals"`
	TextContains            float64 `yaml:"text_contains" json:"text_contains"`
	TagEquals               float64 `yaml:"tag_equals" json:"tag_equals"`
	CSSPath                 float64 `yaml:"css_path" json:"css_path"`
}

// DefaultWeights returns the stock weights.
func DefaultWeights() Weights {
	return Weights{
		StableAttributeEquals:   1.0,
		AttributeEquals:         0.6,
		StableAttributeContains: 0.7,
		AttributeContains:       0.4,
		TextEquals:              0.8,
		TextContains:            0.5,
		TagEquals:               0.2,
		CSSPath:                 0.7,
	}
}

// WithDefaults fills unset (non-positive) weights from DefaultWeights and
// caps every weight at 1.
func (w Weights) WithDefaults() Weights {
	d := DefaultWeights()
	fill := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
		if *v > 1 {
			*v = 1
		}
	}
	fill(&w.StableAttributeEquals, d.StableAttributeEquals)
	fill(&w.AttributeEquals, d.AttributeEquals)
	fill(&w.StableAttributeContains, d.StableAttributeContains)
	fill(&w.AttributeContains, d.AttributeContains)
	fill(&w.TextEquals, d.TextEquals)
	fill(&w.TextContains, d.TextContains)
	fill(&w.TagEquals, d.TagEquals)
	fill(&w.CSSPath, d.CSSPath)
	return w
}

// DefaultDecay is the per-hop weight factor of relative strategies.
const DefaultDecay = 0.9

// Env carries what evaluation needs besides the strategy and snapshot.
type Env struct {
	Policy  *policy.Policy
	Weights Weights
	Decay   float64
}

// DefaultEnv uses the default policy, weights and decay.
func DefaultEnv() Env {
	return Env{Policy: policy.Default(), Weights: DefaultWeights(), Decay: DefaultDecay}
}

// Normalised fills a nil policy, unset weights and an out-of-range decay
// with their defaults.
func (e Env) Normalised() Env {
	if e.Policy == nil {
		e.Policy = policy.Default()
	}
	e.Weights = e.Weights.WithDefaults()
	if e.Decay <= 0 || e.Decay > 1 {
		e.Decay = DefaultDecay
	}
	return e
}

// Weight returns the confidence a direct match of s carries under e. For a
// relative strategy it is the anchor's weight decayed over the shortest
// distance the relation allows.
func (e Env) Weight(s Strategy) float64 {
	e = e.Normalised()
	w := e.Weights
	switch s.Kind {
	case KindAttributeEquals:
		if e.Policy.IsStable(strings.ToLower(strings.TrimSpace(s.Name)), s.Value) {
			return w.StableAttributeEquals
		}
		return w.AttributeEquals
	case KindAttributeContains:
		if e.Policy.IsStable(strings.ToLower(strings.TrimSpace(s.Name)), s.Value) {
			return w.StableAttributeContains
		}
		return w.AttributeContains
	case KindTagEquals:
		return w.TagEquals
	case KindTextEquals:
		return w.TextEquals
	case KindTextContains:
		return w.TextContains
	case KindCSSPath:
		return w.CSSPath
	case KindRelative:
		if s.Anchor == nil {
			return 0
		}
		hops := 1
		if s.Relation != RelAncestor && s.Relation != RelDescendant {
			hops = max(s.Steps, 1)
		}
		return e.Weight(*s.Anchor) * math.Pow(e.Decay, float64(hops))
	}
	return 0
}
