package strategy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Combinator says how a locator's strategies combine.
type Combinator string

const (
	AllOf Combinator = "all-of"
	AnyOf Combinator = "any-of"
)

// Locator is a declarative element descriptor: one or more strategies and
// a combinator. Name is a label for logs and the registry; it does not take
// part in matching or hashing.
type Locator struct {
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	Combinator Combinator `json:"combinator,omitempty" yaml:"combinator,omitempty"`
	Strategies []Strategy `json:"strategies" yaml:"strategies"`
}

// All returns an all-of locator.
func All(strategies ...Strategy) Locator {
	return Locator{Combinator: AllOf, Strategies: strategies}
}

// Any returns an any-of locator.
func Any(strategies ...Strategy) Locator {
	return Locator{Combinator: AnyOf, Strategies: strategies}
}

// Named returns a copy of l labelled name.
func (l Locator) Named(name string) Locator {
	l.Name = name
	return l
}

// Mode returns the combinator, defaulting to all-of.
func (l Locator) Mode() Combinator {
	if l.Combinator == "" {
		return AllOf
	}
	return l.Combinator
}

// Validate checks the locator and every strategy in it.
func (l Locator) Validate() error {
	switch l.Mode() {
	case AllOf, AnyOf:
	default:
		return invalid("", "unknown combinator %q", l.Combinator)
	}
	if len(l.Strategies) == 0 {
		return invalid("", "locator needs at least one strategy")
	}
	for i, s := range l.Strategies {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("strategy %d: %w", i, err)
		}
	}
	return nil
}

// Hash identifies the structural content of the locator: combinator and
// strategies. Strategy order does not matter, since neither combinator is
// order-sensitive. The name is ignored.
func (l Locator) Hash() string {
	parts := make([]string, len(l.Strategies))
	for i, s := range l.Strategies {
		b, _ := json.Marshal(s.canonical())
		parts[i] = string(b)
	}
	slices.Sort(parts)
	h := sha256.New()
	h.Write([]byte(l.Mode()))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// canonical normalises the fields matching is insensitive to.
func (s Strategy) canonical() Strategy {
	c := s
	switch s.Kind {
	case KindAttributeEquals, KindAttributeContains:
		c.Name = strings.ToLower(strings.TrimSpace(s.Name))
	case KindTagEquals:
		c.Value = strings.ToLower(strings.TrimSpace(s.Value))
	case KindRelative:
		if s.Anchor != nil {
			a := s.Anchor.canonical()
			c.Anchor = &a
		}
		if c.Steps == 0 && (s.Relation != RelAncestor && s.Relation != RelDescendant) {
			c.Steps = 1
		}
	}
	return c
}

// Describe renders the locator for logs.
func (l Locator) Describe() string {
	parts := make([]string, len(l.Strategies))
	for i, s := range l.Strategies {
		parts[i] = s.Describe()
	}
	var body string
	if len(parts) == 1 {
		body = parts[0]
	} else {
		body = fmt.Sprintf("%s(%s)", l.Mode(), strings.Join(parts, ", "))
	}
	if l.Name != "" {
		return fmt.Sprintf("%s: %s", l.Name, body)
	}
	return body
}

// ParseLocator decodes a JSON locator and validates it.
func ParseLocator(data []byte) (Locator, error) {
	var l Locator
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&l); err != nil {
		return Locator{}, invalid("", "decode locator: %v", err)
	}
	if err := l.Validate(); err != nil {
		return Locator{}, err
	}
	return l, nil
}
