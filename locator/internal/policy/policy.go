// Package policy decides which attributes identify an element and which are
// regenerated between builds or renders. It is the injectable predicate set
// behind strategy weights and handle fingerprints.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"slices"
	"strings"

	"github.com/hazyhaar/domlocator/dom"
)

// Predicate reports whether an attribute matches a rule. Name-only rules
// ignore value. For class attributes volatility predicates are called once
// per token.
type Predicate func(name, value string) bool

// Policy is a set of predicates. The zero Policy treats no attribute as
// stable and none as volatile.
type Policy struct {
	// Stable attributes are dedicated to identification (test ids, role,
	// aria-*); attribute-equals on them gets the top weight.
	Stable []Predicate
	// Volatile attributes (or class tokens) are excluded from fingerprints.
	Volatile []Predicate
}

// IsStable reports whether any Stable predicate accepts the attribute.
func (p *Policy) IsStable(name, value string) bool {
	return anyOf(p.Stable, name, value)
}

// IsVolatile reports whether any Volatile predicate accepts the attribute.
func (p *Policy) IsVolatile(name, value string) bool {
	return anyOf(p.Volatile, name, value)
}

// StableValue returns the part of an attribute that survives volatility
// filtering. Class tokens are filtered one by one and returned sorted.
// ok is false when nothing is left.
func (p *Policy) StableValue(name, value string) (string, bool) {
	if name == "class" {
		var keep []string
		for _, tok := range strings.Fields(value) {
			if !p.IsVolatile(name, tok) {
				keep = append(keep, tok)
			}
		}
		if len(keep) == 0 {
			return "", false
		}
		slices.Sort(keep)
		return strings.Join(slices.Compact(keep), " "), true
	}
	if p.IsVolatile(name, value) {
		return "", false
	}
	return value, true
}

// Fingerprint hashes the defining features of n: tag, sorted non-volatile
// attribute pairs and normalised text content. The result is the hex form
// of a 128-bit SHA-256 prefix.
func (p *Policy) Fingerprint(n *dom.Node) string {
	names := make([]string, 0, len(n.Attrs))
	for name := range n.Attrs {
		names = append(names, name)
	}
	slices.Sort(names)

	h := sha256.New()
	h.Write([]byte(n.Tag))
	h.Write([]byte{0})
	for _, name := range names {
		v, ok := p.StableValue(name, n.Attrs[name])
		if !ok {
			continue
		}
		h.Write([]byte(name))
		h.Write([]byte{'='})
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	h.Write([]byte{0})
	h.Write([]byte(dom.CleanText(n.Text)))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

func anyOf(preds []Predicate, name, value string) bool {
	for _, pred := range preds {
		if pred(name, value) {
			return true
		}
	}
	return false
}

// NameIn matches attributes whose name is one of names.
func NameIn(names ...string) Predicate {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return func(name, _ string) bool { return set[name] }
}

// NamePrefix matches attributes whose name starts with one of prefixes.
func NamePrefix(prefixes ...string) Predicate {
	return func(name, _ string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}
}

// NameMatches matches attribute names against re.
func NameMatches(re *regexp.Regexp) Predicate {
	return func(name, _ string) bool { return re.MatchString(name) }
}

// ValueMatches matches values of attribute attr ("*" for any attribute)
// against re.
func ValueMatches(attr string, re *regexp.Regexp) Predicate {
	return func(name, value string) bool {
		return (attr == "*" || attr == name) && re.MatchString(value)
	}
}
