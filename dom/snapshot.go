package dom

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTree is returned when a node table does not form a single-rooted
// tree.
var ErrInvalidTree = errors.New("dom: invalid tree")

// Snapshot is an immutable point-in-time view of a page.
type Snapshot struct {
	PageID  string
	Version uint64

	root  NodeID
	nodes map[NodeID]*Node
	order []NodeID       // pre-order (document order)
	pos   map[NodeID]int // index into order
	maxID NodeID
}

// Root returns the id of the root node.
func (s *Snapshot) Root() NodeID { return s.root }

// Node returns the node with the given id.
func (s *Snapshot) Node(id NodeID) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Order returns every node id in document order. The slice is shared and
// must not be modified.
func (s *Snapshot) Order() []NodeID { return s.order }

// Position returns the document-order index of id, or -1.
func (s *Snapshot) Position(id NodeID) int {
	if p, ok := s.pos[id]; ok {
		return p
	}
	return -1
}

// WithVersion returns a snapshot sharing all nodes with s but carrying
// version v.
func (s *Snapshot) WithVersion(v uint64) *Snapshot {
	c := *s
	c.Version = v
	return &c
}

// WithPageID returns a snapshot sharing all nodes with s but carrying
// page id p.
func (s *Snapshot) WithPageID(p string) *Snapshot {
	c := *s
	c.PageID = p
	return &c
}

// Validate checks the tree invariant: one root without parent, no cycles,
// every other node reachable exactly once with a matching parent pointer.
func (s *Snapshot) Validate() error {
	_, err := preorder(s.root, s.nodes)
	return err
}

func (s *Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "snapshot %s@%d (%d nodes)", s.PageID, s.Version, len(s.nodes))
	return b.String()
}

// preorder walks the tree from root and returns the document order. It fails
// when a node is reached twice, a parent pointer disagrees with the child
// lists, or some nodes are unreachable.
func preorder(root NodeID, nodes map[NodeID]*Node) ([]NodeID, error) {
	r, ok := nodes[root]
	if !ok {
		return nil, fmt.Errorf("%w: root %d missing", ErrInvalidTree, root)
	}
	if r.Parent != NoNode {
		return nil, fmt.Errorf("%w: root %d has parent %d", ErrInvalidTree, root, r.Parent)
	}

	order := make([]NodeID, 0, len(nodes))
	seen := make(map[NodeID]bool, len(nodes))
	stack := []NodeID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			return nil, fmt.Errorf("%w: node %d reached twice", ErrInvalidTree, id)
		}
		seen[id] = true
		order = append(order, id)

		n := nodes[id]
		for i := len(n.Children) - 1; i >= 0; i-- {
			cid := n.Children[i]
			c, ok := nodes[cid]
			if !ok {
				return nil, fmt.Errorf("%w: node %d lists missing child %d", ErrInvalidTree, id, cid)
			}
			if c.Parent != id {
				return nil, fmt.Errorf("%w: node %d has parent %d, listed under %d", ErrInvalidTree, cid, c.Parent, id)
			}
			stack = append(stack, cid)
		}
	}
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes unreachable from root", ErrInvalidTree, len(nodes)-len(order), len(nodes))
	}
	return order, nil
}

// index fills order and pos from the node table.
func (s *Snapshot) index() error {
	order, err := preorder(s.root, s.nodes)
	if err != nil {
		return err
	}
	s.order = order
	s.pos = make(map[NodeID]int, len(order))
	for i, id := range order {
		s.pos[id] = i
		if id > s.maxID {
			s.maxID = id
		}
	}
	return nil
}

// recomputeText rebuilds Text for the nodes in dirty, children first. Nodes
// in dirty must already be private copies. Text runs and child text are
// concatenated in document order without separators, as textContent is.
func (s *Snapshot) recomputeText(dirty map[NodeID]bool) {
	var sb strings.Builder
	for i := len(s.order) - 1; i >= 0; i-- {
		id := s.order[i]
		if dirty != nil && !dirty[id] {
			continue
		}
		n := s.nodes[id]
		n.fixRuns()
		sb.Reset()
		sb.WriteString(n.runs[0])
		for j, cid := range n.Children {
			sb.WriteString(s.nodes[cid].raw)
			sb.WriteString(n.runs[j+1])
		}
		n.raw = sb.String()
		n.Text = CleanText(n.raw)
		n.OwnText = CleanText(strings.Join(n.runs, ""))
	}
}
