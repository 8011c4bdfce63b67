// Package rank combines per-strategy matches into ranked candidates and
// classifies the outcome of a resolution. Everything here is a pure function
// of its inputs.
package rank

import (
	"cmp"
	"math"
	"slices"

	"github.com/hazyhaar/domlocator/dom"
	"github.com/hazyhaar/domlocator/locator/internal/strategy"
)

// Outcome classifies a resolution.
type Outcome string

const (
	Unique              Outcome = "unique"
	LowConfidenceUnique Outcome = "low-confidence-unique"
	Ambiguous           Outcome = "ambiguous"
	NotFound            Outcome = "not-found"
)

// Candidate is a node with its combined confidence. Order is its document
// position in the snapshot it was computed from.
type Candidate struct {
	ID         dom.NodeID `json:"id"`
	Confidence float64    `json:"confidence"`
	Order      int        `json:"order"`
}

const (
	DefaultThreshold = 0.3
	DefaultTieBand   = 0.05
)

// Options tune classification. A negative TieBand disables ambiguity
// detection: exact ties then go to the earliest node in document order.
type Options struct {
	Threshold float64 `yaml:"threshold" json:"threshold"`
	TieBand   float64 `yaml:"tie_band" json:"tie_band"`
}

// DefaultOptions returns threshold 0.3 and tie band 0.05.
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, TieBand: DefaultTieBand}
}

// Result is a classified resolution.
type Result struct {
	Outcome Outcome `json:"outcome"`
	// Winner is set for Unique and LowConfidenceUnique.
	Winner *Candidate `json:"winner,omitempty"`
	// Tied holds the candidates within the tie band of the top score when
	// Outcome is Ambiguous.
	Tied []Candidate `json:"tied,omitempty"`
	// Candidates are all combined candidates, best first.
	Candidates []Candidate `json:"candidates"`
}

// OK reports whether the result designates a single node.
func (r Result) OK() bool {
	return r.Outcome == Unique || r.Outcome == LowConfidenceUnique
}

// eps absorbs float rounding in tie comparisons (0.8-0.75 > 0.05 in
// float64).
const eps = 1e-9

// Combine merges per-strategy matches. all-of keeps nodes matched by every
// strategy and scores them with the self-weighted average of their weights
// (sum w^2 / sum w): strong signals dominate and a weak extra signal lowers
// the score only a little. any-of keeps every matched node at its best
// weight. The result is in document order.
func Combine(snap *dom.Snapshot, mode strategy.Combinator, perStrategy [][]strategy.Match) []Candidate {
	type acc struct {
		n          int
		sum, sumSq float64
		max        float64
	}
	scores := make(map[dom.NodeID]*acc)
	for _, matches := range perStrategy {
		seen := make(map[dom.NodeID]bool, len(matches))
		for _, m := range matches {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			a := scores[m.ID]
			if a == nil {
				a = &acc{}
				scores[m.ID] = a
			}
			a.n++
			a.sum += m.Weight
			a.sumSq += m.Weight * m.Weight
			a.max = max(a.max, m.Weight)
		}
	}

	out := make([]Candidate, 0, len(scores))
	for id, a := range scores {
		var conf float64
		switch mode {
		case strategy.AnyOf:
			conf = a.max
		default:
			if a.n != len(perStrategy) {
				continue
			}
			if a.sum > 0 {
				conf = a.sumSq / a.sum
			}
		}
		out = append(out, Candidate{ID: id, Confidence: clamp(conf), Order: snap.Position(id)})
	}
	slices.SortFunc(out, func(x, y Candidate) int { return cmp.Compare(x.Order, y.Order) })
	return out
}

// Innermost drops every candidate that contains another candidate with the
// same confidence. Text content aggregates descendants, so a text match on
// an element also holds for each wrapper around it; the wrapper only wins
// when another signal lifts its score.
func Innermost(snap *dom.Snapshot, cands []Candidate) []Candidate {
	conf := make(map[dom.NodeID]float64, len(cands))
	for _, c := range cands {
		conf[c.ID] = c.Confidence
	}
	shadowed := make(map[dom.NodeID]bool)
	for _, c := range cands {
		for _, anc := range snap.Ancestors(c.ID) {
			if a, ok := conf[anc]; ok && math.Abs(a-c.Confidence) <= eps {
				shadowed[anc] = true
			}
		}
	}
	if len(shadowed) == 0 {
		return cands
	}
	return slices.DeleteFunc(slices.Clone(cands), func(c Candidate) bool { return shadowed[c.ID] })
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}

// Classify ranks candidates and decides the outcome:
//
//   - nothing, or several candidates none of which clears the threshold:
//     NotFound
//   - a single candidate below the threshold: LowConfidenceUnique
//   - two or more candidates within the tie band of the top score:
//     Ambiguous, even if some of them are below the threshold
//   - otherwise Unique
func Classify(cands []Candidate, opts Options) Result {
	ranked := slices.Clone(cands)
	slices.SortStableFunc(ranked, func(x, y Candidate) int {
		if c := cmp.Compare(y.Confidence, x.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(x.Order, y.Order)
	})
	res := Result{Candidates: ranked}
	if len(ranked) == 0 {
		res.Outcome = NotFound
		return res
	}

	top := ranked[0]
	if top.Confidence+eps < opts.Threshold {
		if len(ranked) == 1 {
			res.Outcome = LowConfidenceUnique
			res.Winner = &top
		} else {
			res.Outcome = NotFound
		}
		return res
	}

	if opts.TieBand >= 0 {
		for _, c := range ranked {
			if top.Confidence-c.Confidence <= opts.TieBand+eps {
				res.Tied = append(res.Tied, c)
			}
		}
		if len(res.Tied) >= 2 {
			res.Outcome = Ambiguous
			return res
		}
		res.Tied = nil
	}
	res.Outcome = Unique
	res.Winner = &top
	return res
}

// Resolve evaluates every strategy of l against snap, combines, keeps the
// innermost of nested equal-score candidates and classifies. Ambiguous and
// NotFound outcomes come back with both the Result and a typed error; an
// invalid strategy aborts with its error.
func Resolve(l strategy.Locator, snap *dom.Snapshot, env strategy.Env, opts Options) (Result, error) {
	if err := l.Validate(); err != nil {
		return Result{}, err
	}
	per := make([][]strategy.Match, 0, len(l.Strategies))
	for _, s := range l.Strategies {
		m, err := strategy.Evaluate(s, snap, env)
		if err != nil {
			return Result{}, err
		}
		per = append(per, m)
	}
	res := Classify(Innermost(snap, Combine(snap, l.Mode(), per)), opts)
	return res, res.Err(l.Describe(), opts)
}

// Err returns the error matching a failed outcome, nil otherwise.
func (r Result) Err(locator string, opts Options) error {
	switch r.Outcome {
	case Ambiguous:
		return &AmbiguousError{Locator: locator, Candidates: r.Tied}
	case NotFound:
		e := &NotFoundError{Locator: locator, Threshold: opts.Threshold}
		if len(r.Candidates) > 0 {
			best := r.Candidates[0]
			e.Best = &best
		}
		return e
	}
	return nil
}
