package dom

// Walk visits the subtree rooted at id in document order. fn receives each
// node and its depth below id (0 for id itself); returning false skips the
// node's descendants.
func (s *Snapshot) Walk(id NodeID, fn func(n *Node, depth int) bool) {
	type frame struct {
		id    NodeID
		depth int
	}
	if _, ok := s.nodes[id]; !ok {
		return
	}
	stack := []frame{{id, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := s.nodes[f.id]
		if !fn(n, f.depth) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{n.Children[i], f.depth + 1})
		}
	}
}

// Ancestors returns the ancestors of id, nearest first.
func (s *Snapshot) Ancestors(id NodeID) []NodeID {
	var out []NodeID
	n, ok := s.nodes[id]
	for ok && n.Parent != NoNode {
		out = append(out, n.Parent)
		n, ok = s.nodes[n.Parent]
	}
	return out
}

// Sibling returns the sibling offset positions away from id among its
// parent's children (+1 next, -1 previous).
func (s *Snapshot) Sibling(id NodeID, offset int) (NodeID, bool) {
	n, ok := s.nodes[id]
	if !ok || n.Parent == NoNode {
		return NoNode, false
	}
	siblings := s.nodes[n.Parent].Children
	for i, sid := range siblings {
		if sid != id {
			continue
		}
		j := i + offset
		if j < 0 || j >= len(siblings) {
			return NoNode, false
		}
		return siblings[j], true
	}
	return NoNode, false
}

// Depth returns the number of ancestors of id.
func (s *Snapshot) Depth(id NodeID) int {
	return len(s.Ancestors(id))
}

// Contains reports whether ancestor is a proper ancestor of id.
func (s *Snapshot) Contains(ancestor, id NodeID) bool {
	n, ok := s.nodes[id]
	for ok && n.Parent != NoNode {
		if n.Parent == ancestor {
			return true
		}
		n, ok = s.nodes[n.Parent]
	}
	return false
}
