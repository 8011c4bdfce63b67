package strategy

import (
	"strings"

	"github.com/hazyhaar/domlocator/dom"
)

// css-like paths support a subset of CSS:
//   - tag, *: "button", "*"
//   - #id, .class (repeatable): "form#login", "button.btn.primary"
//   - [attr], [attr=val], [attr*=val]: "input[name=email]"
//   - descendant (space) and child (>) combinators between segments
//
// A segment string starting with "> " is joined to the previous one by the
// child combinator.

type attrSel struct {
	name     string
	value    string
	hasValue bool
	contains bool
}

type segment struct {
	child   bool
	tag     string
	id      string
	classes []string
	attrs   []attrSel
}

// ParseCSSPath splits a selector such as "form#login > button.primary"
// into segments accepted by CSSPath.
func ParseCSSPath(sel string) ([]string, error) {
	var out []string
	child := false
	for _, tok := range tokenize(sel) {
		if tok == ">" {
			if child || len(out) == 0 {
				return nil, invalid(KindCSSPath, "misplaced '>' in %q", sel)
			}
			child = true
			continue
		}
		if child {
			tok = "> " + tok
			child = false
		}
		out = append(out, tok)
	}
	if child {
		return nil, invalid(KindCSSPath, "dangling '>' in %q", sel)
	}
	if _, err := compileSegments(out); err != nil {
		return nil, err
	}
	return out, nil
}

// tokenize splits on whitespace and '>' outside brackets and quotes.
func tokenize(sel string) []string {
	var toks []string
	var cur strings.Builder
	depth := 0
	var quote byte
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(sel); i++ {
		c := sel[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			cur.WriteByte(c)
		case c == '"' || c == '\'':
			quote = c
			cur.WriteByte(c)
		case c == '[':
			depth++
			cur.WriteByte(c)
		case c == ']':
			depth--
			cur.WriteByte(c)
		case depth == 0 && (c == ' ' || c == '\t' || c == '\n'):
			flush()
		case depth == 0 && c == '>':
			flush()
			toks = append(toks, ">")
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return toks
}

func compileSegments(raw []string) ([]segment, error) {
	if len(raw) == 0 {
		return nil, invalid(KindCSSPath, "at least one segment is required")
	}
	segs := make([]segment, 0, len(raw))
	for i, r := range raw {
		s, err := parseSegment(r)
		if err != nil {
			return nil, err
		}
		if i == 0 && s.child {
			return nil, invalid(KindCSSPath, "first segment %q cannot use '>'", r)
		}
		segs = append(segs, s)
	}
	return segs, nil
}

func parseSegment(raw string) (segment, error) {
	var s segment
	str := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(str, ">"); ok {
		s.child = true
		str = strings.TrimSpace(rest)
	}
	if str == "" {
		return s, invalid(KindCSSPath, "empty segment %q", raw)
	}

	i := 0
	ident := func() string {
		start := i
		for i < len(str) && isIdentByte(str[i]) {
			i++
		}
		return str[start:i]
	}

	if str[0] == '*' {
		i = 1
	} else {
		s.tag = strings.ToLower(ident())
	}
	for i < len(str) {
		switch str[i] {
		case '#':
			i++
			if s.id = ident(); s.id == "" {
				return s, invalid(KindCSSPath, "empty id in %q", raw)
			}
		case '.':
			i++
			cls := ident()
			if cls == "" {
				return s, invalid(KindCSSPath, "empty class in %q", raw)
			}
			s.classes = append(s.classes, cls)
		case '[':
			end := strings.IndexByte(str[i:], ']')
			if end < 0 {
				return s, invalid(KindCSSPath, "unclosed '[' in %q", raw)
			}
			a, err := parseAttrSel(str[i+1 : i+end])
			if err != nil {
				return s, invalid(KindCSSPath, "%s in %q", err.Reason, raw)
			}
			s.attrs = append(s.attrs, a)
			i += end + 1
		default:
			return s, invalid(KindCSSPath, "unexpected %q in %q", str[i], raw)
		}
	}
	return s, nil
}

func parseAttrSel(body string) (attrSel, *InvalidStrategyError) {
	var a attrSel
	name, value, hasValue := strings.Cut(body, "=")
	if hasValue && strings.HasSuffix(name, "*") {
		a.contains = true
		name = strings.TrimSuffix(name, "*")
	}
	a.name = strings.ToLower(strings.TrimSpace(name))
	if a.name == "" {
		return a, invalid(KindCSSPath, "empty attribute name")
	}
	for i := 0; i < len(a.name); i++ {
		if !isIdentByte(a.name[i]) {
			return a, invalid(KindCSSPath, "bad attribute name %q", a.name)
		}
	}
	if hasValue {
		a.hasValue = true
		value = strings.TrimSpace(value)
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		a.value = value
	}
	return a, nil
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' || c == ':' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c >= 0x80
}

func (s *segment) matches(n *dom.Node) bool {
	if s.tag != "" && n.Tag != s.tag {
		return false
	}
	if s.id != "" && n.Attrs["id"] != s.id {
		return false
	}
	if len(s.classes) > 0 {
		have := strings.Fields(n.Attrs["class"])
		for _, want := range s.classes {
			found := false
			for _, c := range have {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	for _, a := range s.attrs {
		v, ok := n.Attrs[a.name]
		switch {
		case !ok:
			return false
		case a.contains && !strings.Contains(v, a.value):
			return false
		case a.hasValue && !a.contains && v != a.value:
			return false
		}
	}
	return true
}

// matchPath reports whether node id satisfies segs[:i+1], matching right
// to left and backtracking over ancestors for descendant combinators.
func matchPath(snap *dom.Snapshot, id dom.NodeID, segs []segment, i int) bool {
	n, ok := snap.Node(id)
	if !ok || !segs[i].matches(n) {
		return false
	}
	if i == 0 {
		return true
	}
	if segs[i].child {
		return n.Parent != dom.NoNode && matchPath(snap, n.Parent, segs, i-1)
	}
	for _, anc := range snap.Ancestors(id) {
		if matchPath(snap, anc, segs, i-1) {
			return true
		}
	}
	return false
}
