package transform

import (
	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/typeprobe/internal/types"
)

// Record is the probe row handed to a transform, together with the related
// probe records loaded for it.
type Record struct {
	Entity     string
	Kind       types.ProbeKind
	Attributes *types.Attributes
	Relations  *orderedmap.OrderedMap[string, *Related]
}

// Related holds the records loaded for one relation.
type Related struct {
	Target  string
	Many    bool
	Records []*Record
}

// First returns the first related record, or nil.
func (r *Related) First() *Record {
	if r == nil || len(r.Records) == 0 {
		return nil
	}
	return r.Records[0]
}

// NewRecord creates a record with no relations loaded.
func NewRecord(entity string, kind types.ProbeKind, attrs *types.Attributes) *Record {
	if attrs == nil {
		attrs = types.NewAttributes()
	}
	return &Record{
		Entity:     entity,
		Kind:       kind,
		Attributes: attrs,
		Relations:  orderedmap.NewOrderedMap[string, *Related](),
	}
}

// Get returns an attribute value.
func (r *Record) Get(column string) (interface{}, bool) {
	return r.Attributes.Get(column)
}

// Relation returns a loaded relation. Relations beyond the load depth are
// reported as not loaded.
func (r *Record) Relation(name string) (*Related, bool) {
	return r.Relations.Get(name)
}

// SetRelation attaches related records under name.
func (r *Record) SetRelation(name, target string, many bool, recs ...*Record) {
	r.Relations.Set(name, &Related{Target: target, Many: many, Records: recs})
}
