// Package strategy defines locators and evaluates their strategies against
// a snapshot.
//
// A Strategy is one atomic matching rule. Evaluate returns every node that
// satisfies it, in document order, each tagged with the weight of the rule.
// Weights encode how well a kind of rule survives re-renders: dedicated
// test attributes rank highest, a bare tag lowest.
package strategy

import (
	"fmt"
	"strings"
)

// Kind names a strategy type.
type Kind string

const (
	KindAttributeEquals   Kind = "attribute-equals"
	KindAttributeContains Kind = "attribute-contains"
	KindTagEquals         Kind = "tag-equals"
	KindTextEquals        Kind = "text-equals"
	KindTextContains      Kind = "text-contains"
	KindCSSPath           Kind = "css-like-path"
	KindRelative          Kind = "relative"
)

// Relation is the structural step from a relative strategy's anchor to its
// targets.
type Relation string

const (
	RelParent          Relation = "parent"
	RelChild           Relation = "child"
	RelNextSibling     Relation = "next-sibling"
	RelPreviousSibling Relation = "previous-sibling"
	RelAncestor        Relation = "ancestor"
	RelDescendant      Relation = "descendant"
)

func (r Relation) valid() bool {
	switch r {
	case RelParent, RelChild, RelNextSibling, RelPreviousSibling, RelAncestor, RelDescendant:
		return true
	}
	return false
}

// Strategy is one matching rule. Which fields are used depends on Kind:
//
//	attribute-equals, attribute-contains  Name, Value
//	tag-equals, text-equals, text-contains  Value
//	css-like-path  Segments
//	relative  Anchor, Relation, Steps
//
// For parent, child and the sibling relations Steps is the exact distance
// (0 means 1). For ancestor and descendant it bounds the distance (0 means
// unbounded).
type Strategy struct {
	Kind     Kind      `json:"kind" yaml:"kind"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Value    string    `json:"value,omitempty" yaml:"value,omitempty"`
	Segments []string  `json:"segments,omitempty" yaml:"segments,omitempty"`
	Anchor   *Strategy `json:"anchor,omitempty" yaml:"anchor,omitempty"`
	Relation Relation  `json:"relation,omitempty" yaml:"relation,omitempty"`
	Steps    int       `json:"steps,omitempty" yaml:"steps,omitempty"`
}

func AttributeEquals(name, value string) Strategy {
	return Strategy{Kind: KindAttributeEquals, Name: name, Value: value}
}

func AttributeContains(name, substring string) Strategy {
	return Strategy{Kind: KindAttributeContains, Name: name, Value: substring}
}

func TagEquals(tag string) Strategy { return Strategy{Kind: KindTagEquals, Value: tag} }

func TextEquals(text string) Strategy { return Strategy{Kind: KindTextEquals, Value: text} }

func TextContains(text string) Strategy { return Strategy{Kind: KindTextContains, Value: text} }

// CSSPath builds a css-like-path strategy from already split segments
// (see ParseCSSPath).
func CSSPath(segments ...string) Strategy {
	return Strategy{Kind: KindCSSPath, Segments: segments}
}

// Relative builds a relative strategy.
func Relative(anchor Strategy, rel Relation, steps int) Strategy {
	return Strategy{Kind: KindRelative, Anchor: &anchor, Relation: rel, Steps: steps}
}

// Validate checks that the strategy is well-formed. It does not look at
// any snapshot.
func (s Strategy) Validate() error {
	switch s.Kind {
	case KindAttributeEquals, KindAttributeContains:
		if strings.TrimSpace(s.Name) == "" {
			return invalid(s.Kind, "attribute name is required")
		}
		if s.Kind == KindAttributeContains && s.Value == "" {
			return invalid(s.Kind, "substring is required")
		}
	case KindTagEquals:
		if strings.TrimSpace(s.Value) == "" {
			return invalid(s.Kind, "tag is required")
		}
	case KindTextEquals, KindTextContains:
		if strings.TrimSpace(s.Value) == "" {
			return invalid(s.Kind, "text is required")
		}
	case KindCSSPath:
		if _, err := compileSegments(s.Segments); err != nil {
			return err
		}
	case KindRelative:
		if s.Anchor == nil {
			return invalid(s.Kind, "anchor is required")
		}
		if !s.Relation.valid() {
			return invalid(s.Kind, "unknown relation %q", s.Relation)
		}
		if s.Steps < 0 {
			return invalid(s.Kind, "steps must not be negative")
		}
		if err := s.Anchor.Validate(); err != nil {
			return fmt.Errorf("anchor: %w", err)
		}
	case "":
		return invalid("", "kind is required")
	default:
		return invalid(s.Kind, "unknown kind")
	}
	return nil
}

// Describe renders the strategy for humans.
func (s Strategy) Describe() string {
	switch s.Kind {
	case KindAttributeEquals:
		return fmt.Sprintf("attribute %s = %q", s.Name, s.Value)
	case KindAttributeContains:
		return fmt.Sprintf("attribute %s contains %q", s.Name, s.Value)
	case KindTagEquals:
		return fmt.Sprintf("tag <%s>", strings.ToLower(s.Value))
	case KindTextEquals:
		return fmt.Sprintf("text = %q", s.Value)
	case KindTextContains:
		return fmt.Sprintf("text contains %q", s.Value)
	case KindCSSPath:
		return fmt.Sprintf("path %q", strings.Join(s.Segments, " "))
	case KindRelative:
		anchor := "<missing anchor>"
		if s.Anchor != nil {
			anchor = s.Anchor.Describe()
		}
		return fmt.Sprintf("%s of (%s)", s.describeRelation(), anchor)
	}
	return fmt.Sprintf("%s(%s %s)", s.Kind, s.Name, s.Value)
}

func (s Strategy) describeRelation() string {
	n := s.Steps
	switch s.Relation {
	case RelAncestor, RelDescendant:
		if n == 0 {
			return "any " + string(s.Relation)
		}
		return fmt.Sprintf("%s within %d levels", s.Relation, n)
	}
	if n <= 1 {
		return string(s.Relation)
	}
	return fmt.Sprintf("%s x%d", s.Relation, n)
}
