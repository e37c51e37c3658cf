// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import (
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
)

// Attributes is an ordered column -> value mapping. Insertion order is the
// column order of the entity, which downstream consumers rely on.
type Attributes = orderedmap.OrderedMap[string, interface{}]

// NewAttributes returns an empty attribute map.
func NewAttributes() *Attributes {
	return orderedmap.NewOrderedMap[string, interface{}]()
}

// ProbeKind distinguishes the two probes seeded for every entity.
type ProbeKind string

const (
	// ProbeFull has every column populated with a non-null value.
	ProbeFull ProbeKind = "full"
	// ProbeNull has every nullable column set to null.
	ProbeNull ProbeKind = "null"
)

// ProbeKinds lists both probe kinds in processing order.
var ProbeKinds = []ProbeKind{ProbeFull, ProbeNull}

// RecordHandle locates a persisted probe row.
type RecordHandle struct {
	Table     string
	KeyColumn string // empty when the row is addressed by rowid
	Key       interface{}
}

func (h RecordHandle) String() string {
	col := h.KeyColumn
	if col == "" {
		col = "rowid"
	}
	return fmt.Sprintf("%s[%s=%v]", h.Table, col, h.Key)
}

// ProbeRecord is one seeded probe: the attribute values that were written
// and the handle of the persisted row.
type ProbeRecord struct {
	Entity string
	Kind   ProbeKind
	Values *Attributes
	Handle RecordHandle
}

// ProbePair holds the full and null probes of one entity.
type ProbePair struct {
	Full *ProbeRecord
	Null *ProbeRecord
}

// Get returns the probe of the given kind.
func (p ProbePair) Get(kind ProbeKind) *ProbeRecord {
	if kind == ProbeNull {
		return p.Null
	}
	return p.Full
}
