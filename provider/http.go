package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/horosafe"
	"github.com/hazyhaar/domlocator/mutation"
)

// HTTP snapshots a page with a plain GET. No JavaScript runs, so it suits
// server-rendered pages. The version moves only when the body changes.
type HTTP struct {
	url    string
	cfg    config
	client *retryablehttp.Client

	mu   sync.Mutex
	snap *dom.Snapshot
	hash string
	etag string
	subs listeners
}

// NewHTTP returns a provider fetching pageURL. Private and loopback targets
// are refused unless WithAllowPrivate is given.
func NewHTTP(pageURL string, opts ...Option) (*HTTP, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.allowPrivate {
		if err := horosafe.ValidateURL(pageURL); err != nil {
			return nil, fmt.Errorf("provider: %w", err)
		}
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.retryMax
	client.HTTPClient.Timeout = cfg.timeout
	client.Logger = cfg.logger
	if !cfg.allowPrivate {
		client.HTTPClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("provider: stopped after %d redirects", len(via))
			}
			return horosafe.ValidateURL(req.URL.String())
		}
	}

	return &HTTP{url: pageURL, cfg: cfg, client: client}, nil
}

// Snapshot fetches the page. An unchanged body (same hash, or a 304 for the
// last ETag) returns the previous snapshot without bumping the version.
func (p *HTTP) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	snap, changed, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if changed {
		p.subs.notify(snap.Version)
	}
	return snap, nil
}

// OnMutation registers fn to be called with every new version.
func (p *HTTP) OnMutation(fn func(version uint64)) { p.subs.add(fn) }

func (p *HTTP) fetch(ctx context.Context) (*dom.Snapshot, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("provider: new request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if p.snap != nil && p.etag != "" {
		req.Header.Set("If-None-Match", p.etag)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("provider: fetch %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && p.snap != nil {
		return p.snap, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, fmt.Errorf("provider: fetch %s: status %d", p.url, resp.StatusCode)
	}

	body, err := horosafe.LimitedReadAll(resp.Body, p.cfg.maxBody)
	if err != nil {
		return nil, false, fmt.Errorf("provider: read body: %w", err)
	}
	hash := mutation.HashHTML(body)
	if p.snap != nil && hash == p.hash {
		return p.snap, false, nil
	}

	r, enc := decode(body, resp.Header.Get("Content-Type"))
	version := uint64(1)
	if p.snap != nil {
		version = p.snap.Version + 1
	}
	snap, err := dom.Parse(r, p.cfg.pageID, version)
	if err != nil {
		return nil, false, fmt.Errorf("provider: %w", err)
	}

	p.snap, p.hash, p.etag = snap, hash, resp.Header.Get("ETag")
	p.cfg.logger.Debug("provider: fetched",
		"url", p.url, "status", resp.StatusCode, "size", len(body),
		"encoding", enc, "version", version, "nodes", snap.Len())
	return snap, true, nil
}

// decode returns a UTF-8 reader over body. A BOM, the Content-Type charset
// or a <meta> declaration wins; an undeclared body that is not valid UTF-8
// goes through statistical detection.
func decode(body []byte, contentType string) (io.Reader, string) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && name == "windows-1252" {
		res, err := chardet.NewTextDetector().DetectBest(body)
		if err == nil && res.Confidence >= 50 {
			if e, n := charset.Lookup(res.Charset); e != nil {
				enc, name = e, n
			}
		}
	}
	if name == "utf-8" {
		return bytes.NewReader(body), name
	}
	return enc.NewDecoder().Reader(bytes.NewReader(body)), name
}
