package mutation

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// MarshalBatch serialises a Batch to JSON.
func MarshalBatch(b *Batch) ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBatch deserialises a Batch from JSON and checks that every
// record carries the fields its op needs.
func UnmarshalBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	for i, r := range b.Records {
		if err := r.check(); err != nil {
			return nil, fmt.Errorf("mutation: record %d: %w", i, err)
		}
	}
	return &b, nil
}

func (r Record) check() error {
	switch r.Op {
	case OpInsert:
		if r.Node == nil {
			return fmt.Errorf("insert without node")
		}
	case OpDocReset:
		if r.Node == nil {
			return fmt.Errorf("doc_reset without node")
		}
	case OpRemove, OpText:
		if r.NodeID == 0 {
			return fmt.Errorf("%s without node_id", r.Op)
		}
	case OpAttr, OpAttrDel:
		if r.NodeID == 0 || r.Name == "" {
			return fmt.Errorf("%s needs node_id and name", r.Op)
		}
	default:
		return fmt.Errorf("unknown op %q", r.Op)
	}
	return nil
}

// HashHTML returns the SHA-256 hex digest of raw HTML bytes.
func HashHTML(html []byte) string {
	h := sha256.Sum256(html)
	return fmt.Sprintf("%x", h)
}
