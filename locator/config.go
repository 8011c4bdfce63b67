// CLAUDE:SUMMARY Resolver configuration (ranking, cache, attribute policy, HTTP and browser acquisition) and YAML loader.
package locator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/domlocator/locator/internal/policy"
	"github.com/hazyhaar/domlocator/locator/internal/rank"
	"github.com/hazyhaar/domlocator/locator/internal/strategy"
)

// DefaultPageID is the page a Resolver observes versions for when the
// configuration names none.
const DefaultPageID = "default"

// Config holds all resolver configuration.
type Config struct {
	// DBPath enables the named-locator registry. Empty disables it.
	DBPath  string        `yaml:"db_path"`
	PageID  string        `yaml:"page_id"`
	Resolve ResolveConfig `yaml:"resolve"`
	Cache   CacheConfig   `yaml:"cache"`
	// Policy lists are added to the default stable and volatile lists.
	Policy  policy.Config `yaml:"policy"`
	HTTP    HTTPConfig    `yaml:"http"`
	Browser BrowserConfig `yaml:"browser"`
}

// ResolveConfig tunes scoring and classification.
type ResolveConfig struct {
	Threshold float64 `yaml:"threshold"`
	// TieBand nil means the default; a negative value disables ambiguity
	// detection.
	TieBand *float64         `yaml:"tie_band"`
	Decay   float64          `yaml:"decay"`
	Weights strategy.Weights `yaml:"weights"`
}

// CacheConfig controls the resolution cache.
type CacheConfig struct {
	Enabled    *bool `yaml:"enabled"`
	MaxEntries int   `yaml:"max_entries"`
}

// HTTPConfig controls the HTTP API listener and the HTTP snapshot provider.
type HTTPConfig struct {
	Listen    string        `yaml:"listen"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	RetryMax  int           `yaml:"retry_max"`
	MaxBody   int64         `yaml:"max_body"`
}

// BrowserConfig controls the browser snapshot provider.
type BrowserConfig struct {
	// RemoteURL is the DevTools websocket of a running browser. Empty
	// launches a local one.
	RemoteURL string `yaml:"remote_url"`
	Headless  *bool  `yaml:"headless"`
}

func (c *Config) defaults() {
	if c.PageID == "" {
		c.PageID = DefaultPageID
	}
	if c.Resolve.Threshold <= 0 {
		c.Resolve.Threshold = rank.DefaultThreshold
	}
	if c.Resolve.TieBand == nil {
		band := rank.DefaultTieBand
		c.Resolve.TieBand = &band
	}
	if c.Resolve.Decay <= 0 || c.Resolve.Decay > 1 {
		c.Resolve.Decay = strategy.DefaultDecay
	}
	c.Resolve.Weights = c.Resolve.Weights.WithDefaults()
	if c.Cache.Enabled == nil {
		on := true
		c.Cache.Enabled = &on
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 1024
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8095"
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "domlocator/1.0"
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.HTTP.RetryMax <= 0 {
		c.HTTP.RetryMax = 3
	}
	if c.HTTP.MaxBody <= 0 {
		c.HTTP.MaxBody = 10 << 20
	}
	if c.Browser.Headless == nil {
		on := true
		c.Browser.Headless = &on
	}
}

// env compiles the attribute policy and weights into an evaluation Env.
func (c *Config) env() (strategy.Env, error) {
	p, err := policy.New(policy.DefaultConfig().Merge(c.Policy))
	if err != nil {
		return strategy.Env{}, fmt.Errorf("locator: policy: %w", err)
	}
	return strategy.Env{Policy: p, Weights: c.Resolve.Weights, Decay: c.Resolve.Decay}, nil
}

func (c *Config) rankOptions() rank.Options {
	return rank.Options{Threshold: c.Resolve.Threshold, TieBand: *c.Resolve.TieBand}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("locator: parse %s: %w", path, err)
	}
	return cfg, nil
}
