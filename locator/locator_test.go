package locator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/domlocator/dbopen"
	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/locator/internal/store"
	"github.com/hazyhaar/domlocator/mutation"
)

// html1 head2 body3 form4 input5 button6 button7 span8
const loginPage = `<form id="login"><input name="email" aria-label="Email"><button data-testid="submit" class="btn css-1x2y3z">Sign in</button><button class="btn">Cancel</button><span id="status">Loading...</span></form>`

func testResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	r, err := New(&Config{PageID: "login"}, nil, opts...)
	if err != nil {
		t.Fatal(err)
	}
	r.store = &store.Store{DB: dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))}
	return r
}

func page(t *testing.T, version uint64) *dom.Snapshot {
	t.Helper()
	s, err := dom.ParseString(loginPage, "login", version)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

var submit = All(AttributeEquals("data-testid", "submit"))

func TestResolver_ResolveAndDereference(t *testing.T) {
	r := testResolver(t)
	ctx := context.Background()
	s1 := page(t, 1)

	h, err := r.Resolve(ctx, submit, s1)
	if err != nil {
		t.Fatal(err)
	}
	if h.NodeID != 6 || h.Confidence != 1.0 || h.PageID != "login" {
		t.Fatalf("handle = %+v", h)
	}

	s2, err := dom.Apply(s1, mutation.NewBatch("login", 1, mutation.SetAttr(6, "class", "btn css-7q8w9e")))
	if err != nil {
		t.Fatal(err)
	}
	r.ObserveVersion(s2.Version)
	n, h2, err := r.Dereference(ctx, h, s2)
	if err != nil {
		t.Fatal(err)
	}
	if n.ID != 6 || h2.ID != h.ID || h2.Version != 2 {
		t.Fatalf("node %d handle %+v", n.ID, h2)
	}
}

func TestResolver_Errors(t *testing.T) {
	r := testResolver(t)
	ctx := context.Background()
	s := page(t, 1)

	cases := []struct {
		name string
		l    Locator
		want error
	}{
		{"not found", All(TagEquals("select")), ErrElementNotFound},
		{"ambiguous", All(AttributeContains("class", "btn")), ErrAmbiguousMatch},
		{"invalid", All(AttributeEquals("", "x")), ErrInvalidStrategy},
		{"anchor missing", All(Relative(TextEquals("Nope"), RelNextSibling, 1)), ErrInvalidStrategy},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h, err := r.Resolve(ctx, c.l, s)
			if h != nil || !errors.Is(err, c.want) {
				t.Fatalf("got %+v, %v; want %v", h, err, c.want)
			}
		})
	}

	var amb *AmbiguousError
	_, err := r.Resolve(ctx, All(AttributeContains("class", "btn")), s)
	if !errors.As(err, &amb) || len(amb.Candidates) != 2 {
		t.Fatalf("ambiguous = %#v", err)
	}
}

func TestResolver_Describe(t *testing.T) {
	r := testResolver(t)
	got := r.Describe(All(AttributeEquals("data-testid", "submit"), TagEquals("button")).Named("submit"))
	for _, want := range []string{
		`submit: all-of(`,
		`attribute data-testid = "submit": stable attribute, weight 1.00`,
		`tag <button>: weight 0.20`,
		`sum(w^2)/sum(w)`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Describe missing %q:\n%s", want, got)
		}
	}
}

func TestResolver_Candidates(t *testing.T) {
	r := testResolver(t)
	ex, err := r.Candidates(context.Background(), Any(TagEquals("button"), TextEquals("Cancel")), page(t, 1), 0)
	if err != nil {
		t.Fatal(err)
	}
	if ex.Outcome != Unique || len(ex.Candidates) != 2 {
		t.Fatalf("explanation = %+v", ex)
	}
	top := ex.Candidates[0]
	if top.NodeID != 7 || top.Text != "Cancel" || top.XPath != "/html/body/form/button[2]" {
		t.Fatalf("top = %+v", top)
	}
	if ex.Strategies[0].Matches != 2 || ex.Strategies[1].Matches != 1 {
		t.Fatalf("strategies = %+v", ex.Strategies)
	}

	ex, err = r.Candidates(context.Background(), All(TagEquals("select")), page(t, 1), 0)
	if err != nil || ex.Outcome != NotFound {
		t.Fatalf("not found: %+v, %v", ex, err)
	}
	if _, err := r.Candidates(context.Background(), All(), page(t, 1), 0); !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("invalid: %v", err)
	}
}

func TestResolver_NamedLocators(t *testing.T) {
	r := testResolver(t)
	ctx := context.Background()

	saved, err := r.SaveLocator(ctx, NamedLocator{Name: "submit", PageID: "login", Locator: submit})
	if err != nil {
		t.Fatal(err)
	}
	if saved.Hash != submit.Hash() {
		t.Fatalf("hash = %s", saved.Hash)
	}

	h, err := r.ResolveNamed(ctx, "submit", page(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	if h.Locator.Name != "submit" || h.NodeID != 6 {
		t.Fatalf("handle = %+v", h)
	}

	// The button disappears: the failure is reported too.
	s2, err := dom.Apply(page(t, 1), mutation.NewBatch("login", 1, mutation.Remove(6)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.ResolveNamed(ctx, "submit", s2); !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("err = %v", err)
	}

	hist, err := r.History(ctx, "submit", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].Outcome != "not-found" || hist[1].XPath != "/html/body/form/button[1]" {
		t.Fatalf("history = %+v %+v", hist[0], hist[1])
	}

	list, err := r.ListLocators(ctx, "login", 0)
	if err != nil || len(list) != 1 || list[0].TotalUses != 2 || list[0].TotalFailures != 1 {
		t.Fatalf("list = %+v, %v", list, err)
	}

	sum, err := r.Summary(ctx)
	if err != nil || sum.Locators != 1 || sum.Resolutions != 2 || sum.Tracker.Resolutions != 2 {
		t.Fatalf("summary = %+v, %v", sum, err)
	}

	if err := r.DeleteLocator(ctx, "submit"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ResolveNamed(ctx, "submit", page(t, 1)); !errors.Is(err, ErrUnknownLocator) {
		t.Fatalf("err = %v", err)
	}
	if err := r.DeleteLocator(ctx, "submit"); !errors.Is(err, ErrUnknownLocator) {
		t.Fatalf("second delete = %v", err)
	}
}

func TestResolver_SaveRejectsInvalid(t *testing.T) {
	r := testResolver(t)
	ctx := context.Background()
	if _, err := r.SaveLocator(ctx, NamedLocator{Name: "x", Locator: All()}); !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("err = %v", err)
	}
	if _, err := r.SaveLocator(ctx, NamedLocator{Name: "has space", Locator: submit}); err == nil {
		t.Fatal("invalid name accepted")
	}
}

func TestResolver_NoRegistry(t *testing.T) {
	r, err := New(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.SaveLocator(context.Background(), NamedLocator{Name: "a", Locator: submit}); !errors.Is(err, ErrNoRegistry) {
		t.Fatalf("err = %v", err)
	}
	if _, err := r.ResolveCurrent(context.Background(), submit); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v", err)
	}
	sum, err := r.Summary(context.Background())
	if err != nil || sum.Locators != 0 {
		t.Fatalf("summary = %+v, %v", sum, err)
	}
}

func TestResolver_Metrics(t *testing.T) {
	m := NewMetrics()
	r := testResolver(t, WithMetrics(m))
	ctx := context.Background()
	r.Resolve(ctx, submit, page(t, 1))
	r.Resolve(ctx, All(TagEquals("select")), page(t, 1))

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{"domlocator_resolutions_total", "domlocator_resolve_duration_seconds", "domlocator_cache_hits_total"} {
		if !found[name] {
			t.Errorf("metric %s not exported", name)
		}
	}
}

// seqProvider serves a fixed sequence of snapshots, then repeats the last.
type seqProvider struct {
	mu    sync.Mutex
	snaps []*dom.Snapshot
	calls int
}

func (p *seqProvider) Snapshot(context.Context) (*dom.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := min(p.calls, len(p.snaps)-1)
	p.calls++
	return p.snaps[i], nil
}

func TestPoll_WaitsForElement(t *testing.T) {
	r := testResolver(t)
	empty, err := dom.ParseString(`<form id="login"></form>`, "login", 1)
	if err != nil {
		t.Fatal(err)
	}
	p := &seqProvider{snaps: []*dom.Snapshot{empty, empty, page(t, 2)}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, err := Poll(ctx, r, p, submit, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if h.NodeID != 6 || p.calls != 3 {
		t.Fatalf("handle %+v after %d calls", h, p.calls)
	}
}

func TestPoll_Timeout(t *testing.T) {
	r := testResolver(t)
	p := &seqProvider{snaps: []*dom.Snapshot{page(t, 1)}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Poll(ctx, r, p, All(TagEquals("select")), time.Millisecond)
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("err = %v", err)
	}

	// A lone weak match is returned when time runs out.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	h, err := Poll(ctx2, r, p, All(TagEquals("input")), time.Millisecond)
	if err != nil || !h.LowConfidence {
		t.Fatalf("handle %+v, err %v", h, err)
	}
}

// A weak match that later disappears is not returned when time runs out.
func TestPoll_DropsVanishedWeakMatch(t *testing.T) {
	r := testResolver(t)
	gone, err := dom.ParseString(`<form id="login"></form>`, "login", 2)
	if err != nil {
		t.Fatal(err)
	}
	p := &seqProvider{snaps: []*dom.Snapshot{page(t, 1), gone}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	h, err := Poll(ctx, r, p, All(TagEquals("input")), time.Millisecond)
	if h != nil || !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("handle %+v, err %v; want ErrElementNotFound", h, err)
	}
	if p.calls < 2 {
		t.Fatalf("calls = %d", p.calls)
	}
}

func TestPoll_InvalidFailsFast(t *testing.T) {
	r := testResolver(t)
	p := &seqProvider{snaps: []*dom.Snapshot{page(t, 1)}}
	if _, err := Poll(context.Background(), r, p, All(), time.Millisecond); !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domlocator.yaml")
	data := `
page_id: checkout
resolve:
  threshold: 0.5
  tie_band: -1
  weights:
    tag_equals: 0.3
cache:
  enabled: false
policy:
  stable_attrs: [data-hook]
  volatile_value_patterns:
    class: ['^tw-[0-9a-f]{6}$']
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PageID != "checkout" || cfg.Resolve.Threshold != 0.5 || *cfg.Resolve.TieBand != -1 {
		t.Fatalf("config = %+v", cfg.Resolve)
	}
	if cfg.Resolve.Weights.TagEquals != 0.3 || cfg.Resolve.Weights.TextEquals != 0.8 {
		t.Fatalf("weights = %+v", cfg.Resolve.Weights)
	}
	if *cfg.Cache.Enabled || cfg.Cache.MaxEntries != 1024 {
		t.Fatalf("cache = %+v", cfg.Cache)
	}

	env := r.tracker.Env()
	if !env.Policy.IsStable("data-hook", "x") || !env.Policy.IsStable("data-testid", "x") {
		t.Fatal("policy does not extend the defaults")
	}
	if !env.Policy.IsVolatile("class", "tw-a1b2c3") {
		t.Fatal("volatile class pattern ignored")
	}
}

func TestConfig_BadPolicy(t *testing.T) {
	cfg := &Config{Policy: PolicyConfig{VolatileAttrPatterns: []string{"("}}}
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("invalid regexp accepted")
	}
}
