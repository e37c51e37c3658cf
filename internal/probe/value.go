package probe

import (
	"github.com/elliotchance/orderedmap/v2"
)

// Value is a captured transform output node. The set of variants is closed:
// Scalar, List, CrossReference, Object and Null.
type Value interface {
	isValue()
}

// Scalar is a leaf. Raw is one of bool, int64, float64 or string.
type Scalar struct {
	Raw interface{}
}

// List is an ordered collection.
type List struct {
	Items []Value
}

// CrossReference is the output of a nested transform. Many marks a
// collection of them; Nested is the captured output of the first element,
// nil when the collection was empty or nesting was cut off.
type CrossReference struct {
	Transform string
	Entity    string
	Many      bool
	Nested    *Object
}

// Object is an anonymous structure. Field order is the transform's order.
type Object struct {
	Fields *orderedmap.OrderedMap[string, Value]
}

// Null is an explicit null.
type Null struct{}

func (Scalar) isValue()         {}
func (List) isValue()           {}
func (CrossReference) isValue() {}
func (*Object) isValue()        {}
func (Null) isValue()           {}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{Fields: orderedmap.NewOrderedMap[string, Value]()}
}

// Get returns a field. ok is false when the field is absent, which is
// distinct from a Null value.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	return o.Fields.Get(key)
}

// Set adds or replaces a field.
func (o *Object) Set(key string, v Value) {
	o.Fields.Set(key, v)
}

// Keys returns field names in order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.Fields.Keys()
}

// Len returns the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return o.Fields.Len()
}

// IsNull reports whether v is an explicit null.
func IsNull(v Value) bool {
	_, ok := v.(Null)
	return ok
}
