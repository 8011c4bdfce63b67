package strategy

import (
	"errors"
	"math"
	"testing"

	"github.com/hazyhaar/domlocator/dom"
)

const loginForm = `<html><body>
<form id="login" class="card">
  <label for="email-7">Email</label>
  <input id="email-7" name="email" data-testid="email-input" class="field css-abc12">
  <label>Password</label>
  <input name="password" type="password" class="field">
  <div class="actions">
    <button data-testid="submit" class="btn primary css-1x2y3z">Sign <span>in</span></button>
    <button class="btn">Cancel</button>
  </div>
</form>
<p>Need help? <a href="/help">Contact support</a></p>
</body></html>`

func fixture(t *testing.T) *dom.Snapshot {
	t.Helper()
	s, err := dom.ParseString(loginForm, "login", 1)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// ids returns the ids of nodes matching pred, in document order.
func ids(s *dom.Snapshot, pred func(*dom.Node) bool) []dom.NodeID {
	var out []dom.NodeID
	for _, id := range s.Order() {
		if n, _ := s.Node(id); pred(n) {
			out = append(out, id)
		}
	}
	return out
}

func one(t *testing.T, s *dom.Snapshot, pred func(*dom.Node) bool) dom.NodeID {
	t.Helper()
	got := ids(s, pred)
	if len(got) != 1 {
		t.Fatalf("fixture lookup matched %d nodes", len(got))
	}
	return got[0]
}

func attr(name, value string) func(*dom.Node) bool {
	return func(n *dom.Node) bool { return n.Attrs[name] == value }
}

func tag(name string) func(*dom.Node) bool {
	return func(n *dom.Node) bool { return n.Tag == name }
}

func eval(t *testing.T, s *dom.Snapshot, st Strategy) []Match {
	t.Helper()
	got, err := Evaluate(st, s, DefaultEnv())
	if err != nil {
		t.Fatalf("Evaluate(%s): %v", st.Describe(), err)
	}
	return got
}

func assertMatches(t *testing.T, what string, got []Match, want []dom.NodeID, weight float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %d matches %v, want %v", what, len(got), got, want)
	}
	for i, m := range got {
		if m.ID != want[i] {
			t.Fatalf("%s: match[%d] = %d, want %d", what, i, m.ID, want[i])
		}
		if weight >= 0 && math.Abs(m.Weight-weight) > 1e-9 {
			t.Fatalf("%s: match[%d] weight = %v, want %v", what, i, m.Weight, weight)
		}
	}
}

func TestEvaluate_Attributes(t *testing.T) {
	s := fixture(t)
	submit := one(t, s, attr("data-testid", "submit"))
	email := one(t, s, attr("name", "email"))
	cancel := one(t, s, func(n *dom.Node) bool { return n.Tag == "button" && n.Text == "Cancel" })

	assertMatches(t, "stable equals", eval(t, s, AttributeEquals("data-testid", "submit")), []dom.NodeID{submit}, 1.0)
	assertMatches(t, "generic equals", eval(t, s, AttributeEquals("name", "email")), []dom.NodeID{email}, 0.6)
	assertMatches(t, "name case", eval(t, s, AttributeEquals("NAME", "email")), []dom.NodeID{email}, 0.6)
	assertMatches(t, "class set order", eval(t, s, AttributeEquals("class", "primary css-1x2y3z btn")), []dom.NodeID{submit}, 0.6)
	assertMatches(t, "class exact set", eval(t, s, AttributeEquals("class", "btn")), []dom.NodeID{cancel}, 0.6)
	assertMatches(t, "value case", eval(t, s, AttributeEquals("data-testid", "SUBMIT")), nil, -1)

	assertMatches(t, "stable contains", eval(t, s, AttributeContains("data-testid", "input")), []dom.NodeID{email}, 0.7)
	help := one(t, s, tag("a"))
	assertMatches(t, "generic contains", eval(t, s, AttributeContains("href", "help")), []dom.NodeID{help}, 0.4)
}

func TestEvaluate_Tag(t *testing.T) {
	s := fixture(t)
	assertMatches(t, "tag", eval(t, s, TagEquals("INPUT")), ids(s, tag("input")), 0.2)
	assertMatches(t, "absent tag", eval(t, s, TagEquals("select")), nil, -1)
}

// Text strategies match every node whose text content satisfies them,
// wrappers included; ranking decides between nested matches.
func TestEvaluate_Text(t *testing.T) {
	s := fixture(t)
	submit := one(t, s, attr("data-testid", "submit"))
	span := one(t, s, tag("span"))
	label := one(t, s, func(n *dom.Node) bool { return n.Tag == "label" && n.Text == "Email" })
	help := one(t, s, tag("a"))
	body := one(t, s, tag("body"))
	form := one(t, s, tag("form"))
	actions := one(t, s, attr("class", "actions"))
	para := one(t, s, tag("p"))

	if n, _ := s.Node(submit); n.Text != "Sign in" {
		t.Fatalf("button text = %q", n.Text)
	}
	assertMatches(t, "text equals", eval(t, s, TextEquals("Sign  in")), []dom.NodeID{submit}, 0.8)
	assertMatches(t, "text equals child", eval(t, s, TextEquals("in")), []dom.NodeID{span}, 0.8)
	assertMatches(t, "text equals label", eval(t, s, TextEquals("Email")), []dom.NodeID{label}, 0.8)
	assertMatches(t, "text equals case", eval(t, s, TextEquals("email")), nil, -1)

	assertMatches(t, "contains wrappers", eval(t, s, TextContains("contact")),
		[]dom.NodeID{s.Root(), body, para, help}, 0.5)
	assertMatches(t, "contains case", eval(t, s, TextContains("SIGN")),
		[]dom.NodeID{s.Root(), body, form, actions, submit}, 0.5)
}

func TestEvaluate_TextWrapperEquals(t *testing.T) {
	s, err := dom.ParseString(`<button data-testid="submit"><span>Submit</span></button>`, "p", 1)
	if err != nil {
		t.Fatal(err)
	}
	btn := one(t, s, tag("button"))
	span := one(t, s, tag("span"))
	body := one(t, s, tag("body"))
	assertMatches(t, "wrapper and child", eval(t, s, TextEquals("Submit")),
		[]dom.NodeID{s.Root(), body, btn, span}, 0.8)
}

func TestEvaluate_CSSPath(t *testing.T) {
	s := fixture(t)
	buttons := ids(s, tag("button"))
	email := one(t, s, attr("name", "email"))
	password := one(t, s, attr("name", "password"))

	cases := []struct {
		sel  string
		want []dom.NodeID
	}{
		{"form#login > div.actions button.btn", buttons},
		{"form > button", nil},
		{"form button", buttons},
		{"input[name=email]", []dom.NodeID{email}},
		{`input[type="password"]`, []dom.NodeID{password}},
		{"[data-testid*=mail]", []dom.NodeID{email}},
		{"*.field", []dom.NodeID{email, password}},
		{"body>form>input.field", []dom.NodeID{email, password}},
		{".actions > .btn.primary", buttons[:1]},
	}
	for _, c := range cases {
		segs, err := ParseCSSPath(c.sel)
		if err != nil {
			t.Fatalf("ParseCSSPath(%q): %v", c.sel, err)
		}
		assertMatches(t, c.sel, eval(t, s, CSSPath(segs...)), c.want, 0.7)
	}
}

func TestParseCSSPath(t *testing.T) {
	segs, err := ParseCSSPath(`form#login  >  div.actions button[aria-label="Sign in"]`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"form#login", "> div.actions", `button[aria-label="Sign in"]`}
	if len(segs) != len(want) {
		t.Fatalf("segments = %q", segs)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Fatalf("segments = %q, want %q", segs, want)
		}
	}

	for _, bad := range []string{"", "> a", "a >", "a > > b", "a[", "a[=x]", "a#", "a.", "a!b"} {
		if _, err := ParseCSSPath(bad); !errors.Is(err, ErrInvalidStrategy) {
			t.Errorf("ParseCSSPath(%q): err = %v, want ErrInvalidStrategy", bad, err)
		}
	}
}

func TestEvaluate_Relative(t *testing.T) {
	s := fixture(t)
	email := one(t, s, attr("name", "email"))
	form := one(t, s, tag("form"))
	div := one(t, s, tag("div"))
	span := one(t, s, tag("span"))

	assertMatches(t, "next sibling of label",
		eval(t, s, Relative(TextEquals("Email"), RelNextSibling, 1)), []dom.NodeID{email}, 0.8*0.9)
	assertMatches(t, "parent",
		eval(t, s, Relative(AttributeEquals("data-testid", "submit"), RelParent, 0)), []dom.NodeID{div}, 0.9)
	assertMatches(t, "previous sibling of first child",
		eval(t, s, Relative(AttributeEquals("data-testid", "submit"), RelPreviousSibling, 1)), nil, -1)

	anc := eval(t, s, Relative(AttributeEquals("data-testid", "submit"), RelAncestor, 2))
	assertMatches(t, "ancestors", anc, []dom.NodeID{form, div}, -1)
	if math.Abs(anc[0].Weight-0.81) > 1e-9 || anc[0].Hops != 2 || math.Abs(anc[1].Weight-0.9) > 1e-9 {
		t.Fatalf("ancestor weights = %+v", anc)
	}

	kids := eval(t, s, Relative(AttributeEquals("id", "login"), RelChild, 1))
	assertMatches(t, "children", kids, ids(s, func(n *dom.Node) bool { return n.Parent == form }), 0.6*0.9)

	desc := eval(t, s, Relative(AttributeEquals("id", "login"), RelDescendant, 0))
	if len(desc) != 8 {
		t.Fatalf("descendants = %d, want 8", len(desc))
	}
	for _, m := range desc {
		if m.ID == span && m.Hops != 3 {
			t.Fatalf("span hops = %d, want 3", m.Hops)
		}
	}
	shallow := eval(t, s, Relative(AttributeEquals("id", "login"), RelDescendant, 1))
	if len(shallow) != 5 {
		t.Fatalf("descendants within 1 = %d, want 5", len(shallow))
	}

	// Several anchors reaching the same target yield it once.
	assertMatches(t, "shared parent",
		eval(t, s, Relative(TagEquals("button"), RelParent, 1)), []dom.NodeID{div}, 0.2*0.9)

	chained := eval(t, s, Relative(Relative(TextEquals("in"), RelParent, 1), RelParent, 1))
	assertMatches(t, "chained", chained, []dom.NodeID{div}, 0.8*0.9*0.9)
}

func TestEvaluate_AnchorMissing(t *testing.T) {
	s := fixture(t)
	for _, st := range []Strategy{
		Relative(AttributeEquals("data-testid", "nope"), RelParent, 1),
		Relative(Relative(TextEquals("nowhere"), RelChild, 1), RelNextSibling, 1),
	} {
		_, err := Evaluate(st, s, DefaultEnv())
		if !errors.Is(err, ErrInvalidStrategy) {
			t.Fatalf("%s: err = %v, want ErrInvalidStrategy", st.Describe(), err)
		}
		var ise *InvalidStrategyError
		if !errors.As(err, &ise) || !ise.AnchorMissing {
			t.Fatalf("%s: AnchorMissing not set: %v", st.Describe(), err)
		}
	}
}

func TestValidate(t *testing.T) {
	bad := map[string]Strategy{
		"no kind":          {},
		"unknown kind":     {Kind: "xpath", Value: "//a"},
		"attr no name":     AttributeEquals("", "x"),
		"contains empty":   AttributeContains("href", ""),
		"tag empty":        TagEquals(" "),
		"text empty":       TextEquals(""),
		"css empty":        CSSPath(),
		"css bad":          CSSPath("a[b"),
		"relative nil":     {Kind: KindRelative, Relation: RelParent},
		"relative bad rel": Relative(TagEquals("a"), "cousin", 1),
		"negative steps":   Relative(TagEquals("a"), RelParent, -1),
		"bad anchor":       Relative(TagEquals(""), RelParent, 1),
	}
	for name, st := range bad {
		if err := st.Validate(); !errors.Is(err, ErrInvalidStrategy) {
			t.Errorf("%s: err = %v, want ErrInvalidStrategy", name, err)
		}
	}
	if err := AttributeEquals("disabled", "").Validate(); err != nil {
		t.Errorf("empty attribute value should be allowed: %v", err)
	}
}

func TestEnv_WeightsOverride(t *testing.T) {
	s := fixture(t)
	env := DefaultEnv()
	env.Weights = Weights{TagEquals: 0.35}
	got, err := Evaluate(TagEquals("form"), s, env)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Weight != 0.35 {
		t.Fatalf("override ignored: %+v", got)
	}
	got, _ = Evaluate(TextEquals("Cancel"), s, env)
	if len(got) != 1 || got[0].Weight != 0.8 {
		t.Fatalf("unset weight not defaulted: %+v", got)
	}
}

func TestEnv_Weight(t *testing.T) {
	env := DefaultEnv()
	cases := []struct {
		s    Strategy
		want float64
	}{
		{AttributeEquals("data-testid", "submit"), 1.0},
		{AttributeEquals("Data-TestId", "submit"), 1.0},
		{AttributeEquals("name", "email"), 0.6},
		{AttributeContains("aria-label", "mail"), 0.7},
		{AttributeContains("href", "help"), 0.4},
		{TagEquals("p"), 0.2},
		{TextEquals("Cancel"), 0.8},
		{TextContains("cancel"), 0.5},
		{CSSPath("form", "> input"), 0.7},
		{Relative(TextEquals("Email"), RelNextSibling, 0), 0.8 * 0.9},
		{Relative(TextEquals("Email"), RelParent, 2), 0.8 * 0.81},
		{Relative(AttributeEquals("id", "login"), RelDescendant, 0), 0.6 * 0.9},
	}
	for _, c := range cases {
		if got := env.Weight(c.s); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("Weight(%s) = %v, want %v", c.s.Describe(), got, c.want)
		}
	}
}
