package rank

import (
	"errors"
	"math"
	"testing"

	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/locator/internal/strategy"
)

func parse(t *testing.T, markup string) *dom.Snapshot {
	t.Helper()
	s, err := dom.ParseString(markup, "p", 1)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func resolve(t *testing.T, s *dom.Snapshot, l strategy.Locator) (Result, error) {
	t.Helper()
	return Resolve(l, s, strategy.DefaultEnv(), DefaultOptions())
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// Scenario: a single button with data-testid="submit".
func TestResolve_StableAttributeUnique(t *testing.T) {
	s := parse(t, `<form><input name="q"><button data-testid="submit">Go</button></form>`)
	res, err := resolve(t, s, strategy.All(strategy.AttributeEquals("data-testid", "submit")))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Unique || res.Winner == nil {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if !near(res.Winner.Confidence, 1.0) {
		t.Fatalf("confidence = %v, want 1.0", res.Winner.Confidence)
	}
	n, _ := s.Node(res.Winner.ID)
	if n.Tag != "button" {
		t.Fatalf("winner tag = %s", n.Tag)
	}
}

// Scenario: two divs with the same text.
func TestResolve_TextAmbiguous(t *testing.T) {
	s := parse(t, `<div>Submit</div><div>Submit</div>`)
	res, err := resolve(t, s, strategy.All(strategy.TextEquals("Submit")))
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("err = %v, want ErrAmbiguousMatch", err)
	}
	var amb *AmbiguousError
	if !errors.As(err, &amb) || len(amb.Candidates) != 2 {
		t.Fatalf("ambiguous error = %#v", err)
	}
	for _, c := range amb.Candidates {
		if !near(c.Confidence, 0.8) {
			t.Fatalf("candidate confidence = %v, want 0.8", c.Confidence)
		}
	}
	if res.Outcome != Ambiguous || res.Winner != nil {
		t.Fatalf("result = %+v", res)
	}
	if amb.Candidates[0].Order > amb.Candidates[1].Order {
		t.Fatal("tied candidates not in document order")
	}
}

// A stable attribute on a wrapper combined with the wrapper's own text.
func TestResolve_AllOfAttributeAndWrapperText(t *testing.T) {
	s := parse(t, `<button data-testid="submit"><span>Submit</span></button>`)
	res, err := resolve(t, s, strategy.All(
		strategy.AttributeEquals("data-testid", "submit"),
		strategy.TextEquals("Submit"),
	))
	if err != nil {
		t.Fatal(err)
	}
	n, _ := s.Node(res.Winner.ID)
	if res.Outcome != Unique || n.Tag != "button" {
		t.Fatalf("result = %+v, winner <%s>", res, n.Tag)
	}
	if want := (1.0 + 0.64) / 1.8; !near(res.Winner.Confidence, want) {
		t.Fatalf("confidence = %v, want %v", res.Winner.Confidence, want)
	}
}

// Text inside inline children still matches the element as rendered.
func TestResolve_TextAcrossInlineChildren(t *testing.T) {
	s := parse(t, `<p>Click <a href="/next">here</a> to continue</p><button><b>Sub</b>mit</button>`)
	res, err := resolve(t, s, strategy.All(strategy.TextEquals("Submit")))
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Node(res.Winner.ID); n.Tag != "button" {
		t.Fatalf("winner = <%s>", n.Tag)
	}
	res, err = resolve(t, s, strategy.All(strategy.TextContains("here to continue")))
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Node(res.Winner.ID); n.Tag != "p" {
		t.Fatalf("winner = <%s>", n.Tag)
	}
}

// Equal-score matches nested in one another collapse to the innermost;
// a wrapper lifted by another signal is kept.
func TestInnermost(t *testing.T) {
	s := parse(t, `<div data-testid="w"><section><span>Save</span></section></div><div>Save</div>`)
	res, err := resolve(t, s, strategy.All(strategy.TextEquals("Save")))
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("err = %v, want ErrAmbiguousMatch", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %+v, want span and second div", res.Candidates)
	}
	for _, c := range res.Candidates {
		if n, _ := s.Node(c.ID); n.Tag != "span" && n.Tag != "div" {
			t.Fatalf("kept wrapper <%s>", n.Tag)
		}
	}

	res, err = resolve(t, s, strategy.Any(
		strategy.AttributeEquals("data-testid", "w"),
		strategy.TextEquals("Save"),
	))
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Node(res.Winner.ID); n.Attrs["data-testid"] != "w" {
		t.Fatalf("wrapper with extra signal dropped: %+v", res.Candidates)
	}

	in := []Candidate{{ID: 1, Confidence: 0.5}, {ID: 3, Confidence: 0.5}}
	if out := Innermost(s, in); len(out) != 1 || out[0].ID != 3 || len(in) != 2 {
		t.Fatalf("Innermost = %+v (input %+v)", out, in)
	}
}

// Scenario: no input elements at all.
func TestResolve_TagNotFound(t *testing.T) {
	s := parse(t, `<div><p>no form here</p></div>`)
	res, err := resolve(t, s, strategy.All(strategy.TagEquals("input")))
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("err = %v, want ErrElementNotFound", err)
	}
	if res.Outcome != NotFound || len(res.Candidates) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestResolve_LowConfidenceUnique(t *testing.T) {
	s := parse(t, `<form><input name="q"></form>`)
	res, err := resolve(t, s, strategy.All(strategy.TagEquals("input")))
	if err != nil {
		t.Fatalf("low confidence must not fail: %v", err)
	}
	if res.Outcome != LowConfidenceUnique || res.Winner == nil || !near(res.Winner.Confidence, 0.2) {
		t.Fatalf("result = %+v", res)
	}
}

func TestResolve_SeveralBelowThresholdNotFound(t *testing.T) {
	s := parse(t, `<input name="a"><input name="b"><input name="c" class="x">`)
	// Tags alone are below threshold; three candidates are NotFound
	// rather than ambiguous.
	_, err := resolve(t, s, strategy.All(strategy.TagEquals("input")))
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Best == nil || !near(nf.Best.Confidence, 0.2) {
		t.Fatalf("err = %v", err)
	}
}

// Two nodes differing only by a bundler-hashed class cannot be told apart
// by an any-of over their shared test id.
func TestResolve_VolatileOnlyDifferenceIsAmbiguous(t *testing.T) {
	s := parse(t, `<button data-testid="save" class="css-1a2b3c">Save</button>
		<button data-testid="save" class="css-9z8y7x">Save</button>`)
	_, err := resolve(t, s, strategy.Any(strategy.AttributeEquals("data-testid", "save")))
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("err = %v, want ErrAmbiguousMatch", err)
	}
}

func TestResolve_InvalidStrategyPropagates(t *testing.T) {
	s := parse(t, `<p>x</p>`)
	_, err := resolve(t, s, strategy.All(
		strategy.Relative(strategy.TextEquals("Email"), strategy.RelNextSibling, 1),
	))
	if !errors.Is(err, strategy.ErrInvalidStrategy) {
		t.Fatalf("err = %v, want ErrInvalidStrategy", err)
	}
	_, err = resolve(t, s, strategy.Locator{})
	if !errors.Is(err, strategy.ErrInvalidStrategy) {
		t.Fatalf("empty locator err = %v", err)
	}
}

func TestCombine_AllOf(t *testing.T) {
	s := parse(t, `<button data-testid="submit" class="btn">Save</button><button class="btn">Save</button>`)
	res, err := resolve(t, s, strategy.All(
		strategy.AttributeEquals("data-testid", "submit"),
		strategy.TextEquals("Save"),
		strategy.TagEquals("button"),
	))
	if err != nil {
		t.Fatal(err)
	}
	// (1.0^2 + 0.8^2 + 0.2^2) / (1.0 + 0.8 + 0.2)
	want := (1.0 + 0.64 + 0.04) / 2.0
	if res.Outcome != Unique || !near(res.Winner.Confidence, want) {
		t.Fatalf("result = %+v, want confidence %v", res, want)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("all-of kept nodes missing a strategy: %+v", res.Candidates)
	}
}

func TestCombine_AnyOf(t *testing.T) {
	s := parse(t, `<button data-testid="submit">Save</button><a href="#">Save</a>`)
	res, err := resolve(t, s, strategy.Any(
		strategy.AttributeEquals("data-testid", "submit"),
		strategy.TextEquals("Save"),
	))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Unique || !near(res.Winner.Confidence, 1.0) {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Candidates) != 2 || !near(res.Candidates[1].Confidence, 0.8) {
		t.Fatalf("candidates = %+v", res.Candidates)
	}
}

func TestClassify(t *testing.T) {
	opts := DefaultOptions()
	c := func(id dom.NodeID, conf float64, order int) Candidate {
		return Candidate{ID: id, Confidence: conf, Order: order}
	}
	tests := []struct {
		name   string
		in     []Candidate
		opts   Options
		want   Outcome
		winner dom.NodeID
		tied   int
	}{
		{"empty", nil, opts, NotFound, 0, 0},
		{"clear winner", []Candidate{c(1, 0.6, 0), c(2, 1.0, 1)}, opts, Unique, 2, 0},
		{"within band", []Candidate{c(1, 0.8, 0), c(2, 0.75, 1)}, opts, Ambiguous, 0, 2},
		{"just outside band", []Candidate{c(1, 0.8, 0), c(2, 0.74, 1)}, opts, Unique, 1, 0},
		{"band reaches below threshold", []Candidate{c(1, 0.32, 0), c(2, 0.28, 1)}, opts, Ambiguous, 0, 2},
		{"single low", []Candidate{c(7, 0.1, 3)}, opts, LowConfidenceUnique, 7, 0},
		{"many low", []Candidate{c(7, 0.1, 3), c(8, 0.25, 4)}, opts, NotFound, 0, 0},
		{"at threshold", []Candidate{c(5, 0.3, 0)}, opts, Unique, 5, 0},
		{"exact tie band disabled", []Candidate{c(9, 0.8, 5), c(4, 0.8, 2)}, Options{Threshold: 0.3, TieBand: -1}, Unique, 4, 0},
		{"exact tie zero band", []Candidate{c(9, 0.8, 5), c(4, 0.8, 2)}, Options{Threshold: 0.3, TieBand: 0}, Ambiguous, 0, 2},
	}
	for _, tt := range tests {
		res := Classify(tt.in, tt.opts)
		if res.Outcome != tt.want {
			t.Errorf("%s: outcome = %s, want %s", tt.name, res.Outcome, tt.want)
			continue
		}
		if tt.winner != 0 && (res.Winner == nil || res.Winner.ID != tt.winner) {
			t.Errorf("%s: winner = %+v, want %d", tt.name, res.Winner, tt.winner)
		}
		if len(res.Tied) != tt.tied {
			t.Errorf("%s: tied = %d, want %d", tt.name, len(res.Tied), tt.tied)
		}
	}
}

func TestClassify_DoesNotReorderInput(t *testing.T) {
	in := []Candidate{{ID: 1, Confidence: 0.2, Order: 0}, {ID: 2, Confidence: 0.9, Order: 1}}
	Classify(in, DefaultOptions())
	if in[0].ID != 1 {
		t.Fatal("input slice reordered")
	}
}

func TestErrorMessages(t *testing.T) {
	nf := &NotFoundError{Locator: "tag <input>", Threshold: 0.3}
	if nf.Error() != "element not found: tag <input>" {
		t.Fatalf("message = %q", nf.Error())
	}
	amb := &AmbiguousError{Locator: `text = "Submit"`, Candidates: []Candidate{{ID: 4, Confidence: 0.8}, {ID: 5, Confidence: 0.8}}}
	if amb.Error() != `ambiguous match: text = "Submit" (2 candidates: 4@0.80, 5@0.80)` {
		t.Fatalf("message = %q", amb.Error())
	}
}
