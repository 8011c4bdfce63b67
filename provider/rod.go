package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/horosafe"
)

// CDP node types.
const (
	cdpElement  = 1
	cdpText     = 3
	cdpDocument = 9
	cdpFragment = 11
)

var cdpHiddenText = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// Connect attaches to the browser at remoteURL, or launches a local one
// when remoteURL is empty. The returned func closes the browser and cleans
// up any launched process.
func Connect(ctx context.Context, remoteURL string, headless bool) (*rod.Browser, func(), error) {
	var l *launcher.Launcher
	u := remoteURL
	if u == "" {
		l = launcher.New().Headless(headless)
		var err error
		if u, err = l.Launch(); err != nil {
			return nil, nil, fmt.Errorf("provider: launch browser: %w", err)
		}
	}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, nil, fmt.Errorf("provider: connect browser: %w", err)
	}

	closeFn := func() {
		_ = b.Close()
		if l != nil {
			l.Cleanup()
		}
	}
	return b, closeFn, nil
}

// Rod snapshots a live browser page over CDP. Node ids are the CDP backend
// node ids, which stay stable for the lifetime of a document. Every DOM
// event moves the version.
type Rod struct {
	page *rod.Page
	cfg  config
	subs listeners
	stop context.CancelFunc
	done chan struct{}

	mu      sync.Mutex
	version uint64
	snap    *dom.Snapshot
}

// OpenRod opens pageURL in a new tab of b and wraps it.
func OpenRod(ctx context.Context, b *rod.Browser, pageURL string, opts ...Option) (*Rod, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.allowPrivate {
		if err := horosafe.ValidateURL(pageURL); err != nil {
			return nil, fmt.Errorf("provider: %w", err)
		}
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return nil, fmt.Errorf("provider: open %s: %w", pageURL, err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("provider: wait load %s: %w", pageURL, err)
	}
	return NewRod(ctx, page, opts...)
}

// NewRod wraps an open page and starts listening for DOM events until ctx
// ends or Close is called.
func NewRod(ctx context.Context, page *rod.Page, opts ...Option) (*Rod, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	if err := (proto.DOMEnable{}).Call(page); err != nil {
		return nil, fmt.Errorf("provider: enable DOM domain: %w", err)
	}

	evCtx, cancel := context.WithCancel(ctx)
	p := &Rod{page: page, cfg: cfg, stop: cancel, done: make(chan struct{}), version: 1}

	wait := page.Context(evCtx).EachEvent(
		func(*proto.DOMChildNodeInserted) { p.bump() },
		func(*proto.DOMChildNodeRemoved) { p.bump() },
		func(*proto.DOMAttributeModified) { p.bump() },
		func(*proto.DOMAttributeRemoved) { p.bump() },
		func(*proto.DOMCharacterDataModified) { p.bump() },
		func(*proto.DOMDocumentUpdated) { p.bump() },
	)
	go func() {
		defer close(p.done)
		wait()
	}()
	return p, nil
}

// Snapshot returns the page's DOM at the current version. The document is
// read again only when an event arrived since the last call.
func (p *Rod) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	p.mu.Lock()
	version, cached := p.version, p.snap
	p.mu.Unlock()
	if cached != nil && cached.Version == version {
		return cached, nil
	}

	res, err := proto.DOMGetDocument{Depth: gson.Int(-1), Pierce: true}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("provider: get document: %w", err)
	}
	snap, err := fromCDP(res.Root, p.cfg.pageID, version)
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}

	p.mu.Lock()
	if p.snap == nil || p.snap.Version < version {
		p.snap = snap
	}
	p.mu.Unlock()
	p.cfg.logger.Debug("provider: cdp snapshot", "page_id", p.cfg.pageID, "version", version, "nodes", snap.Len())
	return snap, nil
}

// OnMutation registers fn to be called with every new version.
func (p *Rod) OnMutation(fn func(version uint64)) { p.subs.add(fn) }

// Close stops the event listener. The page itself stays open.
func (p *Rod) Close() {
	p.stop()
	<-p.done
}

func (p *Rod) bump() {
	p.mu.Lock()
	p.version++
	v := p.version
	p.mu.Unlock()
	p.subs.notify(v)
}

// fromCDP converts a DOM.getDocument tree into a snapshot. Shadow roots and
// frame documents are flattened under their host element; text nodes feed
// their parent's own text.
func fromCDP(root *proto.DOMNode, pageID string, version uint64) (*dom.Snapshot, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", dom.ErrInvalidTree)
	}
	b := dom.NewBuilder(pageID, version)

	var walk func(parent dom.NodeID, hidden bool, n *proto.DOMNode)
	walk = func(parent dom.NodeID, hidden bool, n *proto.DOMNode) {
		switch n.NodeType {
		case cdpElement:
			tag := n.LocalName
			if tag == "" {
				tag = n.NodeName
			}
			id := b.AddID(dom.NodeID(n.BackendNodeID), parent, tag, cdpAttrs(n.Attributes), "")
			hide := cdpHiddenText[strings.ToLower(tag)]
			for _, sr := range n.ShadowRoots {
				walk(id, hide, sr)
			}
			for _, c := range n.Children {
				walk(id, hide, c)
			}
			if n.ContentDocument != nil {
				walk(id, false, n.ContentDocument)
			}
		case cdpText:
			if parent != dom.NoNode && !hidden {
				b.AppendText(parent, n.NodeValue)
			}
		case cdpDocument, cdpFragment:
			for _, c := range n.Children {
				walk(parent, hidden, c)
			}
		}
	}
	walk(dom.NoNode, false, root)
	return b.Build()
}

func cdpAttrs(flat []string) map[string]string {
	if len(flat) < 2 {
		return nil
	}
	attrs := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		attrs[flat[i]] = flat[i+1]
	}
	return attrs
}
