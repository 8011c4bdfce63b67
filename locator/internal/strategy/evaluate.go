package strategy

import (
	"math"
	"slices"
	"strings"

	"github.com/hazyhaar/domlocator/dom"
)

// Match is a node satisfying a strategy, with the strategy's weight for it.
type Match struct {
	ID     dom.NodeID `json:"id"`
	Weight float64    `json:"weight"`
	// Hops is the structural distance from the anchor for relative
	// strategies, 0 otherwise.
	Hops int `json:"hops,omitempty"`
}

// Evaluate returns the nodes of snap satisfying s, in document order. An
// empty result is not an error. It fails with *InvalidStrategyError when s
// is malformed or when a relative strategy's anchor matches nothing.
func Evaluate(s Strategy, snap *dom.Snapshot, env Env) ([]Match, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return evaluate(s, snap, env.Normalised())
}

func evaluate(s Strategy, snap *dom.Snapshot, env Env) ([]Match, error) {
	w := env.Weights
	switch s.Kind {
	case KindAttributeEquals:
		name := strings.ToLower(strings.TrimSpace(s.Name))
		weight := w.AttributeEquals
		if env.Policy.IsStable(name, s.Value) {
			weight = w.StableAttributeEquals
		}
		eq := func(v string) bool { return v == s.Value }
		if name == "class" {
			want := classSet(s.Value)
			eq = func(v string) bool { return classSet(v) == want }
		}
		return scan(snap, weight, func(n *dom.Node) bool {
			v, ok := n.Attrs[name]
			return ok && eq(v)
		}), nil

	case KindAttributeContains:
		name := strings.ToLower(strings.TrimSpace(s.Name))
		weight := w.AttributeContains
		if env.Policy.IsStable(name, s.Value) {
			weight = w.StableAttributeContains
		}
		return scan(snap, weight, func(n *dom.Node) bool {
			v, ok := n.Attrs[name]
			return ok && strings.Contains(v, s.Value)
		}), nil

	case KindTagEquals:
		tag := strings.ToLower(strings.TrimSpace(s.Value))
		return scan(snap, w.TagEquals, func(n *dom.Node) bool { return n.Tag == tag }), nil

	case KindTextEquals:
		want := dom.CleanText(s.Value)
		return scan(snap, w.TextEquals, func(n *dom.Node) bool { return n.Text == want }), nil

	case KindTextContains:
		want := strings.ToLower(dom.CleanText(s.Value))
		return scan(snap, w.TextContains, func(n *dom.Node) bool {
			return strings.Contains(strings.ToLower(n.Text), want)
		}), nil

	case KindCSSPath:
		segs, err := compileSegments(s.Segments)
		if err != nil {
			return nil, err
		}
		last := len(segs) - 1
		return scan(snap, w.CSSPath, func(n *dom.Node) bool {
			return matchPath(snap, n.ID, segs, last)
		}), nil

	case KindRelative:
		return evaluateRelative(s, snap, env)
	}
	return nil, invalid(s.Kind, "unknown kind")
}

func scan(snap *dom.Snapshot, weight float64, pred func(*dom.Node) bool) []Match {
	var out []Match
	for _, id := range snap.Order() {
		n, _ := snap.Node(id)
		if pred(n) {
			out = append(out, Match{ID: id, Weight: weight})
		}
	}
	return out
}

func classSet(v string) string {
	toks := strings.Fields(v)
	slices.Sort(toks)
	return strings.Join(slices.Compact(toks), " ")
}

func evaluateRelative(s Strategy, snap *dom.Snapshot, env Env) ([]Match, error) {
	anchors, err := evaluate(*s.Anchor, snap, env)
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, &InvalidStrategyError{
			Kind:          KindRelative,
			Reason:        "anchor (" + s.Anchor.Describe() + ") matched no node",
			AnchorMissing: true,
		}
	}

	best := make(map[dom.NodeID]Match)
	add := func(id dom.NodeID, anchorWeight float64, hops int) {
		m := Match{ID: id, Weight: anchorWeight * math.Pow(env.Decay, float64(hops)), Hops: hops}
		if cur, ok := best[id]; !ok || m.Weight > cur.Weight {
			best[id] = m
		}
	}

	steps := s.Steps
	for _, a := range anchors {
		switch s.Relation {
		case RelParent:
			n := max(steps, 1)
			if anc := snap.Ancestors(a.ID); len(anc) >= n {
				add(anc[n-1], a.Weight, n)
			}
		case RelAncestor:
			for i, anc := range snap.Ancestors(a.ID) {
				if steps > 0 && i+1 > steps {
					break
				}
				add(anc, a.Weight, i+1)
			}
		case RelChild:
			n := max(steps, 1)
			snap.Walk(a.ID, func(node *dom.Node, depth int) bool {
				if depth == n {
					add(node.ID, a.Weight, n)
					return false
				}
				return true
			})
		case RelDescendant:
			snap.Walk(a.ID, func(node *dom.Node, depth int) bool {
				if depth > 0 {
					add(node.ID, a.Weight, depth)
				}
				return steps == 0 || depth < steps
			})
		case RelNextSibling, RelPreviousSibling:
			n := max(steps, 1)
			if s.Relation == RelPreviousSibling {
				n = -n
			}
			if sib, ok := snap.Sibling(a.ID, n); ok {
				add(sib, a.Weight, max(steps, 1))
			}
		}
	}

	out := make([]Match, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	slices.SortFunc(out, func(x, y Match) int {
		return snap.Position(x.ID) - snap.Position(y.ID)
	})
	return out, nil
}
