// Package mutation defines the change records a snapshot provider emits
// between two versions of a page. A Batch applied to a dom.Snapshot yields
// the next version (see dom.Apply).
package mutation

import (
	"time"

	"github.com/hazyhaar/domlocator/idgen"
)

// Op is the type of DOM mutation observed.
type Op string

const (
	OpInsert   Op = "insert"    // subtree inserted under ParentID
	OpRemove   Op = "remove"    // subtree rooted at NodeID removed
	OpText     Op = "text"      // own text of NodeID replaced
	OpAttr     Op = "attr"      // attribute set
	OpAttrDel  Op = "attr_del"  // attribute removed
	OpDocReset Op = "doc_reset" // whole document replaced by Node
)

// NodeSpec describes an element subtree carried by insert and doc_reset
// records. ID is the identifier the provider assigns; zero asks the
// receiver to allocate one.
type NodeSpec struct {
	ID       int64             `json:"id,omitempty"`
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Children []*NodeSpec       `json:"children,omitempty"`
}

// Record is a single DOM mutation.
type Record struct {
	Op       Op        `json:"op"`
	NodeID   int64     `json:"node_id,omitempty"`
	ParentID int64     `json:"parent_id,omitempty"` // insert target
	Index    int       `json:"index"`               // insert position among children; negative appends
	Name     string    `json:"name,omitempty"`      // attribute name for attr/attr_del
	Value    string    `json:"value,omitempty"`     // new value (attr, text)
	OldValue string    `json:"old_value,omitempty"`
	Node     *NodeSpec `json:"node,omitempty"` // insert, doc_reset
}

// Batch is the unit applied atomically to a snapshot: all records observed
// during one provider flush.
type Batch struct {
	ID        string   `json:"id"` // UUIDv7
	PageID    string   `json:"page_id"`
	Seq       uint64   `json:"seq"` // monotonically increasing per page
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds at flush
}

// NewBatch returns a batch stamped with a fresh id and the current time.
func NewBatch(pageID string, seq uint64, records ...Record) *Batch {
	return &Batch{
		ID:        idgen.New(),
		PageID:    pageID,
		Seq:       seq,
		Records:   records,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Append is shorthand for records that append a new subtree under parent.
func Append(parent int64, node *NodeSpec) Record {
	return Record{Op: OpInsert, ParentID: parent, Index: -1, Node: node}
}

// SetAttr records an attribute change on node.
func SetAttr(node int64, name, value string) Record {
	return Record{Op: OpAttr, NodeID: node, Name: name, Value: value}
}

// RemoveAttr records an attribute removal on node.
func RemoveAttr(node int64, name string) Record {
	return Record{Op: OpAttrDel, NodeID: node, Name: name}
}

// SetText records a change of node's own text.
func SetText(node int64, text string) Record {
	return Record{Op: OpText, NodeID: node, Value: text}
}

// Remove records the removal of the subtree rooted at node.
func Remove(node int64) Record {
	return Record{Op: OpRemove, NodeID: node}
}
