package dom

import (
	"fmt"
	"strings"
)

// XPath returns an absolute XPath for id. A position predicate is added
// only when the parent has several children with the same tag.
func (s *Snapshot) XPath(id NodeID) string {
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Sprintf("/unknown[nodeId=%d]", id)
	}
	var parts []string
	for ok {
		parts = append(parts, s.step(n))
		if n.Parent == NoNode {
			break
		}
		n, ok = s.nodes[n.Parent]
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

func (s *Snapshot) step(n *Node) string {
	if n.Parent == NoNode {
		return n.Tag
	}
	idx, total := 0, 0
	for _, sid := range s.nodes[n.Parent].Children {
		if s.nodes[sid].Tag != n.Tag {
			continue
		}
		total++
		if sid == n.ID {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s[%d]", n.Tag, idx)
	}
	return n.Tag
}
