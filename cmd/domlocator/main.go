// CLAUDE:SUMMARY CLI entry point for domlocator: one-shot resolve/describe/candidates, HTTP+MCP server, MCP over stdio.
// Command domlocator resolves element locators against HTML pages.
//
// Usage:
//
//	domlocator -html page.html -locator '{"strategies":[...]}'   # one-shot resolve
//	domlocator -url https://example.com -locator @login.json      # fetch then resolve
//	domlocator -url https://example.com -browser -name submit     # live page, saved locator
//	domlocator -locator @login.json -describe                     # explain weights
//	domlocator -html page.html -locator @l.json -candidates 5     # rank matches
//	domlocator -serve :8095 -db locators.db                       # HTTP API + /mcp
//	domlocator -mcp-stdio -db locators.db                         # MCP over stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/locator"
	"github.com/hazyhaar/domlocator/provider"
)

const version = "0.1.0"

type flags struct {
	config     string
	db         string
	pageID     string
	logLevel   string
	html       string
	url        string
	browser    bool
	locator    string
	name       string
	describe   bool
	candidates int
	serve      string
	mcpStdio   bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to domlocator.yaml config file")
	flag.StringVar(&f.db, "db", "", "named-locator registry database (overrides config)")
	flag.StringVar(&f.pageID, "page-id", "", "page id stamped on snapshots (overrides config)")
	flag.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.StringVar(&f.html, "html", "", "resolve against this HTML file")
	flag.StringVar(&f.url, "url", "", "resolve against this page")
	flag.BoolVar(&f.browser, "browser", false, "load -url in a browser instead of a plain GET")
	flag.StringVar(&f.locator, "locator", "", "locator JSON, or @file")
	flag.StringVar(&f.name, "name", "", "resolve a saved locator by name")
	flag.BoolVar(&f.describe, "describe", false, "explain the locator and exit")
	flag.IntVar(&f.candidates, "candidates", 0, "print the N best candidates instead of resolving")
	flag.StringVar(&f.serve, "serve", "", "serve the HTTP API (and /mcp) on this address")
	flag.BoolVar(&f.mcpStdio, "mcp-stdio", false, "serve MCP over stdin/stdout")
	flag.Parse()

	var level slog.Level
	switch f.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil {
		logger.Error("domlocator: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	cfg := &locator.Config{}
	if f.config != "" {
		var err error
		if cfg, err = locator.LoadConfigFile(f.config); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if f.db != "" {
		cfg.DBPath = f.db
	}
	if f.pageID != "" {
		cfg.PageID = f.pageID
	}

	if f.describe {
		l, err := readLocator(f.locator)
		if err != nil {
			return err
		}
		r, err := locator.New(cfg, logger)
		if err != nil {
			return err
		}
		defer r.Close()
		fmt.Println(r.Describe(l))
		return nil
	}

	metrics := locator.NewMetrics()
	opts := []locator.Option{locator.WithMetrics(metrics)}
	src, closeSrc, err := openSource(ctx, logger, cfg, f)
	if err != nil {
		return err
	}
	defer closeSrc()
	if src != nil {
		opts = append(opts, locator.WithProvider(src))
	}

	r, err := locator.New(cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer r.Close()
	if src != nil {
		src.OnMutation(r.ObserveVersion)
	}

	switch {
	case f.serve != "":
		return runServe(ctx, logger, r, metrics, f.serve)
	case f.mcpStdio:
		return newMCPServer(r).Run(ctx, &mcp.StdioTransport{})
	case src == nil:
		fmt.Fprintln(os.Stderr, "usage: domlocator (-html FILE | -url URL) (-locator JSON | -name NAME) | -serve ADDR | -mcp-stdio")
		os.Exit(2)
	}
	return runOnce(ctx, r, src, f)
}

// source is what the CLI needs from a snapshot provider.
type source interface {
	locator.SnapshotProvider
	locator.MutationSource
}

func openSource(ctx context.Context, logger *slog.Logger, cfg *locator.Config, f flags) (source, func(), error) {
	noop := func() {}
	pageID := cfg.PageID
	if pageID == "" {
		pageID = locator.DefaultPageID
	}

	switch {
	case f.html != "":
		fh, err := os.Open(f.html)
		if err != nil {
			return nil, noop, fmt.Errorf("open html: %w", err)
		}
		defer fh.Close()
		snap, err := dom.Parse(fh, pageID, 1)
		if err != nil {
			return nil, noop, err
		}
		return provider.NewStatic(snap), noop, nil

	case f.url != "" && f.browser:
		headless := cfg.Browser.Headless == nil || *cfg.Browser.Headless
		b, closeBrowser, err := provider.Connect(ctx, cfg.Browser.RemoteURL, headless)
		if err != nil {
			return nil, noop, err
		}
		p, err := provider.OpenRod(ctx, b, f.url, provider.WithPageID(pageID), provider.WithLogger(logger))
		if err != nil {
			closeBrowser()
			return nil, noop, err
		}
		return p, func() { p.Close(); closeBrowser() }, nil

	case f.url != "":
		opts := []provider.Option{
			provider.WithPageID(pageID),
			provider.WithUserAgent(cfg.HTTP.UserAgent),
			provider.WithTimeout(cfg.HTTP.Timeout),
			provider.WithMaxBody(cfg.HTTP.MaxBody),
			provider.WithLogger(logger),
		}
		// Zero means unset here; the provider default applies.
		if cfg.HTTP.RetryMax != 0 {
			opts = append(opts, provider.WithRetryMax(cfg.HTTP.RetryMax))
		}
		p, err := provider.NewHTTP(f.url, opts...)
		if err != nil {
			return nil, noop, err
		}
		return p, noop, nil
	}
	return nil, noop, nil
}

func runOnce(ctx context.Context, r *locator.Resolver, src source, f flags) error {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if f.name != "" {
		h, err := r.ResolveNamed(ctx, f.name, snap)
		if err != nil {
			return err
		}
		return printResult(r, h, snap)
	}

	l, err := readLocator(f.locator)
	if err != nil {
		return err
	}
	if f.candidates > 0 {
		exp, err := r.Candidates(ctx, l, snap, f.candidates)
		if err != nil {
			return err
		}
		return printJSON(exp)
	}
	h, err := r.Resolve(ctx, l, snap)
	if err != nil {
		return err
	}
	return printResult(r, h, snap)
}

func printResult(r *locator.Resolver, h *locator.Handle, snap *dom.Snapshot) error {
	n, _ := snap.Node(h.NodeID)
	return printJSON(map[string]any{
		"handle": h,
		"tag":    n.Tag,
		"attrs":  n.Attrs,
		"text":   n.Text,
		"xpath":  snap.XPath(h.NodeID),
		"stats":  r.Stats(),
	})
}

func runServe(ctx context.Context, logger *slog.Logger, r *locator.Resolver, metrics *locator.Metrics, addr string) error {
	srv := &http.Server{
		Addr: addr,
		Handler: locator.NewHTTPHandler(r, locator.HTTPOptions{
			MCP:     newMCPServer(r),
			Metrics: metrics,
			Timeout: r.Config().HTTP.Timeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("domlocator: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("domlocator: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMCPServer(r *locator.Resolver) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "domlocator", Version: version}, nil)
	r.RegisterMCP(srv)
	return srv
}

func readLocator(arg string) (locator.Locator, error) {
	if arg == "" {
		return locator.Locator{}, errors.New("-locator is required")
	}
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return locator.Locator{}, fmt.Errorf("read locator: %w", err)
		}
	}
	return locator.ParseLocator(data)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
