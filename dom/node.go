// Package dom holds the immutable, arena-style page snapshots the resolver
// works on.
//
// A Snapshot is a flat table of Nodes keyed by NodeID. Children are stored
// as id lists and parents as back-references, so a snapshot can be cloned
// cheaply and shared across goroutines without locking. Every mutation
// (Apply) produces a new Snapshot with Version+1 and leaves the previous one
// untouched.
package dom

import (
	"maps"
	"strings"
)

// NodeID identifies a node within a page for as long as the provider keeps
// it alive. It is assigned by the snapshot provider and is unrelated to the
// element's id attribute.
type NodeID int64

// NoNode is the zero NodeID, used as the parent of the root.
const NoNode NodeID = 0

// Node is one element of a snapshot. Nodes reachable from a Snapshot must
// not be modified.
type Node struct {
	ID    NodeID            `json:"id"`
	Tag   string            `json:"tag"`
	Attrs map[string]string `json:"attrs,omitempty"`
	// OwnText is the normalised text of the node's direct text children.
	OwnText string `json:"own_text,omitempty"`
	// Text is the normalised text content of the node and its descendants.
	Text     string   `json:"text,omitempty"`
	Children []NodeID `json:"children,omitempty"`
	Parent   NodeID   `json:"parent,omitempty"`

	// runs[i] is the raw text before Children[i]; the last run follows the
	// last child.
	runs []string
	// raw is the unnormalised textContent.
	raw string
}

// Attr returns the value of attribute name and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// clone returns a copy whose Attrs and Children can be modified freely.
func (n *Node) clone() *Node {
	c := *n
	c.Attrs = maps.Clone(n.Attrs)
	c.Children = append([]NodeID(nil), n.Children...)
	c.runs = append([]string(nil), n.runs...)
	return &c
}

// fixRuns pads or trims runs to one slot per gap around the children.
// Nodes built without runs get OwnText as their leading run.
func (n *Node) fixRuns() {
	if n.runs == nil && n.OwnText != "" {
		n.runs = []string{n.OwnText}
	}
	want := len(n.Children) + 1
	for len(n.runs) < want {
		n.runs = append(n.runs, "")
	}
	if len(n.runs) > want {
		tail := strings.Join(n.runs[want-1:], "")
		n.runs = append(n.runs[:want-1], tail)
	}
}
