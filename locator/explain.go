package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/locator/internal/rank"
	"github.com/hazyhaar/domlocator/locator/internal/strategy"
)

// Describe explains l in plain words: the combinator, then one line per
// strategy with the confidence a match carries.
//
//	submit: all-of(attribute data-testid = "submit", tag <button>)
//	  - attribute data-testid = "submit": stable attribute, weight 1.00
//	  - tag <button>: weight 0.20
func (r *Resolver) Describe(l Locator) string {
	env := r.tracker.Env()
	var b strings.Builder
	b.WriteString(l.Describe())
	for _, s := range l.Strategies {
		fmt.Fprintf(&b, "\n  - %s: ", s.Describe())
		switch {
		case s.Kind == KindAttributeEquals || s.Kind == KindAttributeContains:
			if env.Policy.IsStable(strings.ToLower(strings.TrimSpace(s.Name)), s.Value) {
				b.WriteString("stable attribute, ")
			} else if env.Policy.IsVolatile(strings.ToLower(strings.TrimSpace(s.Name)), s.Value) {
				b.WriteString("volatile value, ")
			}
		case s.Kind == KindRelative:
			b.WriteString("at most ")
		}
		fmt.Fprintf(&b, "weight %.2f", env.Weight(s))
	}
	switch l.Mode() {
	case AllOf:
		b.WriteString("\n  combined: nodes matching every strategy, scored sum(w^2)/sum(w)")
	case AnyOf:
		b.WriteString("\n  combined: nodes matching any strategy, scored by their best weight")
	}
	return b.String()
}

// Explanation is a full ranking of a locator on a snapshot.
type Explanation struct {
	Locator    string           `json:"locator"`
	Hash       string           `json:"hash"`
	PageID     string           `json:"page_id"`
	Version    uint64           `json:"version"`
	Outcome    Outcome          `json:"outcome"`
	Threshold  float64          `json:"threshold"`
	Strategies []StrategyReport `json:"strategies"`
	Candidates []CandidateView  `json:"candidates"`
}

// StrategyReport is how many nodes one strategy matched on its own.
type StrategyReport struct {
	Strategy string  `json:"strategy"`
	Weight   float64 `json:"weight"`
	Matches  int     `json:"matches"`
	Error    string  `json:"error,omitempty"`
}

// CandidateView is a ranked candidate with enough context to recognise it.
type CandidateView struct {
	NodeID     dom.NodeID `json:"node_id"`
	Tag        string     `json:"tag"`
	XPath      string     `json:"xpath"`
	Confidence float64    `json:"confidence"`
	Text       string     `json:"text,omitempty"`
}

const viewTextMax = 80

// Candidates ranks every node l matches in snap without deciding on a
// winner. Not-found and ambiguous outcomes are reported in the Explanation
// rather than as errors; only an invalid locator fails. limit caps the
// number of candidates returned (0 for all).
func (r *Resolver) Candidates(ctx context.Context, l Locator, snap *dom.Snapshot, limit int) (*Explanation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("locator: candidates: nil snapshot")
	}
	env := r.tracker.Env()
	res, err := rank.Resolve(l, snap, env, r.tracker.RankOptions())
	if err != nil && !errors.Is(err, ErrElementNotFound) && !errors.Is(err, ErrAmbiguousMatch) {
		return nil, err
	}

	ex := &Explanation{
		Locator:   l.Describe(),
		Hash:      l.Hash(),
		PageID:    snap.PageID,
		Version:   snap.Version,
		Outcome:   res.Outcome,
		Threshold: r.cfg.Resolve.Threshold,
	}
	for _, s := range l.Strategies {
		rep := StrategyReport{Strategy: s.Describe(), Weight: env.Weight(s)}
		m, err := strategy.Evaluate(s, snap, env)
		if err != nil {
			rep.Error = err.Error()
		}
		rep.Matches = len(m)
		ex.Strategies = append(ex.Strategies, rep)
	}
	cands := res.Candidates
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	for _, c := range cands {
		ex.Candidates = append(ex.Candidates, view(snap, c.ID, c.Confidence))
	}
	return ex, nil
}

func view(snap *dom.Snapshot, id dom.NodeID, confidence float64) CandidateView {
	v := CandidateView{NodeID: id, XPath: snap.XPath(id), Confidence: confidence}
	if n, ok := snap.Node(id); ok {
		v.Tag = n.Tag
		v.Text = truncate(n.Text, viewTextMax)
	}
	return v
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
