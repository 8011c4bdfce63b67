package dom

import (
	"fmt"
	"maps"
	"strings"
)

// Builder assembles a Snapshot node by node. Parents must be added before
// their children; children are appended in call order.
type Builder struct {
	pageID  string
	version uint64
	nodes   map[NodeID]*Node
	root    NodeID
	next    NodeID
	err     error
}

// NewBuilder returns a Builder for the given page and version.
func NewBuilder(pageID string, version uint64) *Builder {
	return &Builder{
		pageID:  pageID,
		version: version,
		nodes:   make(map[NodeID]*Node),
		next:    1,
	}
}

// Add appends a node under parent (NoNode for the root) with the next free
// id and returns that id. ownText is the text before the node's first child.
func (b *Builder) Add(parent NodeID, tag string, attrs map[string]string, ownText string) NodeID {
	for {
		if _, taken := b.nodes[b.next]; !taken {
			break
		}
		b.next++
	}
	id := b.next
	b.next++
	return b.AddID(id, parent, tag, attrs, ownText)
}

// AddID appends a node with a caller-chosen id. Errors (duplicate id,
// unknown parent, second root) are reported by Build.
func (b *Builder) AddID(id, parent NodeID, tag string, attrs map[string]string, ownText string) NodeID {
	if b.err != nil {
		return id
	}
	if id == NoNode {
		b.err = fmt.Errorf("%w: node id 0 is reserved", ErrInvalidTree)
		return id
	}
	if _, dup := b.nodes[id]; dup {
		b.err = fmt.Errorf("%w: duplicate node id %d", ErrInvalidTree, id)
		return id
	}
	n := &Node{
		ID:      id,
		Tag:     strings.ToLower(tag),
		Attrs:   maps.Clone(attrs),
		OwnText: CleanText(ownText),
		Parent:  parent,
		runs:    []string{ownText},
	}
	if parent == NoNode {
		if b.root != NoNode {
			b.err = fmt.Errorf("%w: second root %d (root is %d)", ErrInvalidTree, id, b.root)
			return id
		}
		b.root = id
	} else {
		p, ok := b.nodes[parent]
		if !ok {
			b.err = fmt.Errorf("%w: parent %d of node %d not added", ErrInvalidTree, parent, id)
			return id
		}
		p.Children = append(p.Children, id)
		p.fixRuns()
	}
	b.nodes[id] = n
	return id
}

// AppendText adds a text run after the children added to id so far, so
// text and elements keep their document order.
func (b *Builder) AppendText(id NodeID, text string) {
	n, ok := b.nodes[id]
	if !ok || b.err != nil {
		return
	}
	n.fixRuns()
	n.runs[len(n.runs)-1] += text
	n.OwnText = CleanText(strings.Join(n.runs, ""))
}

// Build finalises the snapshot. The Builder must not be used afterwards.
func (b *Builder) Build() (*Snapshot, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.root == NoNode {
		return nil, fmt.Errorf("%w: empty tree", ErrInvalidTree)
	}
	s := &Snapshot{
		PageID:  b.pageID,
		Version: b.version,
		root:    b.root,
		nodes:   b.nodes,
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	s.recomputeText(nil)
	b.nodes = nil
	return s, nil
}
