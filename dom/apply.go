package dom

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hazyhaar/domlocator/mutation"
)

var (
	// ErrUnknownNode is returned when a record references a node the
	// snapshot does not hold.
	ErrUnknownNode = errors.New("dom: unknown node")
	// ErrInvalidRecord is returned for records that cannot be applied.
	ErrInvalidRecord = errors.New("dom: invalid mutation record")
)

// Apply returns the snapshot obtained by applying batch to s, with
// Version = s.Version+1. Only the nodes touched by the batch and their
// ancestors are copied; s is never modified. Records are applied in order
// and the batch is all-or-nothing.
func Apply(s *Snapshot, batch *mutation.Batch) (*Snapshot, error) {
	if batch.PageID != "" && s.PageID != "" && batch.PageID != s.PageID {
		return nil, fmt.Errorf("%w: batch for page %q applied to %q", ErrInvalidRecord, batch.PageID, s.PageID)
	}
	a := &applier{
		next:  &Snapshot{PageID: s.PageID, Version: s.Version + 1, root: s.root, nodes: maps.Clone(s.nodes), maxID: s.maxID},
		owned: make(map[NodeID]bool),
		dirty: make(map[NodeID]bool),
	}
	for i, r := range batch.Records {
		if err := a.apply(r); err != nil {
			return nil, fmt.Errorf("dom: apply record %d (%s): %w", i, r.Op, err)
		}
	}

	n := a.next
	if a.structural {
		if err := n.index(); err != nil {
			return nil, err
		}
	} else {
		n.order, n.pos = s.order, s.pos
	}
	// Text of every ancestor of a changed node depends on it.
	for id := range maps.Clone(a.dirty) {
		for _, anc := range n.Ancestors(id) {
			if a.dirty[anc] {
				continue
			}
			a.own(anc)
			a.dirty[anc] = true
		}
	}
	n.recomputeText(a.dirty)
	return n, nil
}

type applier struct {
	next       *Snapshot
	owned      map[NodeID]bool // nodes already copied into next
	dirty      map[NodeID]bool // nodes whose Text must be recomputed
	structural bool
}

// own replaces the shared node id with a private copy and returns it.
func (a *applier) own(id NodeID) (*Node, error) {
	n, ok := a.next.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if a.owned[id] {
		return n, nil
	}
	c := n.clone()
	a.next.nodes[id] = c
	a.owned[id] = true
	return c, nil
}

func (a *applier) apply(r mutation.Record) error {
	switch r.Op {
	case mutation.OpText:
		n, err := a.own(NodeID(r.NodeID))
		if err != nil {
			return err
		}
		// The value replaces every text run of the node.
		n.runs = []string{r.Value}
		n.fixRuns()
		n.OwnText = CleanText(r.Value)
		a.dirty[n.ID] = true

	case mutation.OpAttr, mutation.OpAttrDel:
		if r.Name == "" {
			return fmt.Errorf("%w: missing attribute name", ErrInvalidRecord)
		}
		n, err := a.own(NodeID(r.NodeID))
		if err != nil {
			return err
		}
		if r.Op == mutation.OpAttr {
			if n.Attrs == nil {
				n.Attrs = make(map[string]string)
			}
			n.Attrs[r.Name] = r.Value
		} else {
			delete(n.Attrs, r.Name)
		}

	case mutation.OpInsert:
		if r.Node == nil {
			return fmt.Errorf("%w: insert without node", ErrInvalidRecord)
		}
		parent, err := a.own(NodeID(r.ParentID))
		if err != nil {
			return err
		}
		id, err := a.graft(parent.ID, r.Node)
		if err != nil {
			return err
		}
		parent.fixRuns()
		if r.Index < 0 || r.Index >= len(parent.Children) {
			parent.Children = append(parent.Children, id)
			parent.runs = append(parent.runs, "")
		} else {
			// The new child sits right before the old one, after its text.
			parent.Children = slices.Insert(parent.Children, r.Index, id)
			parent.runs = slices.Insert(parent.runs, r.Index+1, "")
		}
		a.dirty[parent.ID] = true
		a.structural = true

	case mutation.OpRemove:
		id := NodeID(r.NodeID)
		n, ok := a.next.nodes[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownNode, id)
		}
		if n.Parent == NoNode {
			return fmt.Errorf("%w: cannot remove the root; use doc_reset", ErrInvalidRecord)
		}
		parent, err := a.own(n.Parent)
		if err != nil {
			return err
		}
		parent.fixRuns()
		if k := slices.Index(parent.Children, id); k >= 0 {
			parent.Children = slices.Delete(parent.Children, k, k+1)
			parent.runs[k] += parent.runs[k+1]
			parent.runs = slices.Delete(parent.runs, k+1, k+2)
		}
		a.drop(id)
		a.dirty[parent.ID] = true
		a.structural = true

	case mutation.OpDocReset:
		if r.Node == nil {
			return fmt.Errorf("%w: doc_reset without node", ErrInvalidRecord)
		}
		a.next.nodes = make(map[NodeID]*Node)
		a.owned = make(map[NodeID]bool)
		a.dirty = make(map[NodeID]bool)
		root, err := a.graft(NoNode, r.Node)
		if err != nil {
			return err
		}
		a.next.root = root
		a.structural = true

	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidRecord, r.Op)
	}
	return nil
}

// graft adds the subtree described by spec under parent and returns the id
// of its root. Zero spec ids are allocated past the highest id ever used.
func (a *applier) graft(parent NodeID, spec *mutation.NodeSpec) (NodeID, error) {
	id := NodeID(spec.ID)
	if id == NoNode {
		a.next.maxID++
		id = a.next.maxID
	} else if _, dup := a.next.nodes[id]; dup {
		return NoNode, fmt.Errorf("%w: node id %d already in use", ErrInvalidRecord, id)
	}
	if id > a.next.maxID {
		a.next.maxID = id
	}
	if spec.Tag == "" {
		return NoNode, fmt.Errorf("%w: node %d without tag", ErrInvalidRecord, id)
	}
	n := &Node{
		ID:      id,
		Tag:     strings.ToLower(spec.Tag),
		Attrs:   maps.Clone(spec.Attrs),
		OwnText: CleanText(spec.Text),
		Parent:  parent,
		runs:    []string{spec.Text},
	}
	a.next.nodes[id] = n
	a.owned[id] = true
	a.dirty[id] = true
	for _, c := range spec.Children {
		cid, err := a.graft(id, c)
		if err != nil {
			return NoNode, err
		}
		n.Children = append(n.Children, cid)
	}
	n.fixRuns()
	return id, nil
}

// drop deletes the subtree rooted at id from the node table.
func (a *applier) drop(id NodeID) {
	n, ok := a.next.nodes[id]
	if !ok {
		return
	}
	for _, c := range n.Children {
		a.drop(c)
	}
	delete(a.next.nodes, id)
	delete(a.owned, id)
	delete(a.dirty, id)
}
