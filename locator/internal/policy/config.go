package policy

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
)

// Config is the declarative form of a Policy, loaded from YAML.
type Config struct {
	StableAttrs    []string `yaml:"stable_attrs" json:"stable_attrs,omitempty"`
	StablePrefixes []string `yaml:"stable_prefixes" json:"stable_prefixes,omitempty"`
	VolatileAttrs  []string `yaml:"volatile_attrs" json:"volatile_attrs,omitempty"`
	// VolatileAttrPatterns are regexps over attribute names.
	VolatileAttrPatterns []string `yaml:"volatile_attr_patterns" json:"volatile_attr_patterns,omitempty"`
	// VolatileValuePatterns maps an attribute name ("*" for any) to regexps
	// over its value. For class, patterns apply per token.
	VolatileValuePatterns map[string][]string `yaml:"volatile_value_patterns" json:"volatile_value_patterns,omitempty"`
}

// idLike matches generated identifiers: numeric suffixes (input-42,
// field_17, mui:3:), bare numbers and React useId values (:r1f:).
const idLike = `(^|[-_:.])\d+:?$|^:r[0-9a-z]+:$|^(ember|yui_|ext-gen)\d+`

// DefaultConfig covers test-id conventions of the common test runners and
// the hashed names emitted by CSS-in-JS libraries, CSS modules, Vue and
// Angular scoping, and generated ids.
func DefaultConfig() Config {
	return Config{
		StableAttrs: []string{
			"data-testid", "data-test-id", "data-test", "data-qa", "data-cy",
			"data-pw", "data-automation-id", "role",
		},
		StablePrefixes: []string{"aria-"},
		VolatileAttrs:  []string{"style", "nonce", "data-reactid", "data-react-checksum"},
		VolatileAttrPatterns: []string{
			`^data-v-[0-9a-f]{6,}$`,
			`^_ng(content|host)-`,
		},
		VolatileValuePatterns: map[string][]string{
			"class": {
				`^css-[a-z0-9]{4,}`,
				`^sc-[A-Za-z0-9]{4,}$`,
				`^jsx-\d+$`,
				`^svelte-[a-z0-9]{4,}$`,
				`^[A-Za-z0-9]+_[A-Za-z0-9-]+__[A-Za-z0-9_-]*\d[A-Za-z0-9_-]*$`,
				`^ng-tns-c\d+-\d+$`,
			},
			"id":               {idLike},
			"for":              {idLike},
			"aria-labelledby":  {idLike},
			"aria-describedby": {idLike},
			"aria-controls":    {idLike},
		},
	}
}

// New compiles cfg into a Policy.
func New(cfg Config) (*Policy, error) {
	p := &Policy{}
	if len(cfg.StableAttrs) > 0 {
		p.Stable = append(p.Stable, NameIn(cfg.StableAttrs...))
	}
	if len(cfg.StablePrefixes) > 0 {
		p.Stable = append(p.Stable, NamePrefix(cfg.StablePrefixes...))
	}
	if len(cfg.VolatileAttrs) > 0 {
		p.Volatile = append(p.Volatile, NameIn(cfg.VolatileAttrs...))
	}
	for _, expr := range cfg.VolatileAttrPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("policy: volatile_attr_patterns %q: %w", expr, err)
		}
		p.Volatile = append(p.Volatile, NameMatches(re))
	}
	attrs := make([]string, 0, len(cfg.VolatileValuePatterns))
	for attr := range cfg.VolatileValuePatterns {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)
	for _, attr := range attrs {
		for _, expr := range cfg.VolatileValuePatterns[attr] {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("policy: volatile_value_patterns[%s] %q: %w", attr, expr, err)
			}
			p.Volatile = append(p.Volatile, ValueMatches(attr, re))
		}
	}
	return p, nil
}

// Merge returns cfg with other's entries appended. Used to extend the
// defaults from a config file instead of replacing them.
func (cfg Config) Merge(other Config) Config {
	out := Config{
		StableAttrs:           slices.Concat(cfg.StableAttrs, other.StableAttrs),
		StablePrefixes:        slices.Concat(cfg.StablePrefixes, other.StablePrefixes),
		VolatileAttrs:         slices.Concat(cfg.VolatileAttrs, other.VolatileAttrs),
		VolatileAttrPatterns:  slices.Concat(cfg.VolatileAttrPatterns, other.VolatileAttrPatterns),
		VolatileValuePatterns: make(map[string][]string),
	}
	for k, v := range cfg.VolatileValuePatterns {
		out.VolatileValuePatterns[k] = slices.Clone(v)
	}
	for k, v := range other.VolatileValuePatterns {
		out.VolatileValuePatterns[k] = append(out.VolatileValuePatterns[k], v...)
	}
	return out
}

var defaultPolicy = mustNew(DefaultConfig())

// Default returns the policy built from DefaultConfig.
func Default() *Policy { return defaultPolicy }

func mustNew(cfg Config) *Policy {
	p, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return p
}
