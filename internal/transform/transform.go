// Package transform defines the opaque serialization capability probed by
// typeprobe. A transform receives one probe Record and returns an output tree
// built from these values:
//
//	nil, bool, integer and float types, string
//	[]interface{}                  ordered list
//	*Object                        ordered object (field order is preserved)
//	map[string]interface{}         unordered object (keys are sorted on capture)
//	*Resource, *Collection         nested transform results
package transform

import (
	"context"
	"fmt"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/typeprobe/internal/types"
)

// Transform serializes a record into an output tree.
type Transform interface {
	Name() string
	Apply(ctx context.Context, rec *Record) (interface{}, error)
}

// Object is an ordered output object.
type Object = orderedmap.OrderedMap[string, interface{}]

// NewObject returns an empty ordered object.
func NewObject() *Object {
	return orderedmap.NewOrderedMap[string, interface{}]()
}

// Resource marks a value as the result of another transform applied to a
// related record. It is resolved when the output is captured.
type Resource struct {
	Transform Transform
	Record    *Record
}

// NewResource wraps rec for serialization by t.
func NewResource(t Transform, rec *Record) *Resource {
	return &Resource{Transform: t, Record: rec}
}

// Collection is a list of records serialized by the same transform.
type Collection struct {
	Transform Transform
	Records   []*Record
}

// NewCollection wraps recs for serialization by t.
func NewCollection(t Transform, recs []*Record) *Collection {
	return &Collection{Transform: t, Records: recs}
}

// Func adapts a plain function to the Transform interface.
type Func struct {
	name string
	fn   func(ctx context.Context, rec *Record) (interface{}, error)
}

// NewFunc returns a named transform backed by fn.
func NewFunc(name string, fn func(ctx context.Context, rec *Record) (interface{}, error)) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Apply(ctx context.Context, rec *Record) (interface{}, error) {
	return f.fn(ctx, rec)
}

// Identity returns every attribute of the record unchanged, followed by its
// loaded relations, each serialized by an identity transform named after the
// related entity.
func Identity(name string) Transform {
	return NewFunc(name, func(ctx context.Context, rec *Record) (interface{}, error) {
		out := NewObject()
		if rec == nil {
			return out, nil
		}
		for el := rec.Attributes.Front(); el != nil; el = el.Next() {
			out.Set(el.Key, el.Value)
		}
		for el := rec.Relations.Front(); el != nil; el = el.Next() {
			rel := el.Value
			if rel.Many {
				out.Set(el.Key, NewCollection(Identity(rel.Target), rel.Records))
				continue
			}
			if first := rel.First(); first != nil {
				out.Set(el.Key, NewResource(Identity(rel.Target), first))
			} else {
				out.Set(el.Key, nil)
			}
		}
		return out, nil
	})
}

// Invocation describes the request a transform runs under. Probes always run
// unauthenticated and outside any route.
type Invocation struct {
	Route         string
	Authenticated bool
	Probe         types.ProbeKind
}

type invocationKey struct{}

// WithInvocation attaches inv to ctx.
func WithInvocation(ctx context.Context, inv Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFrom returns the invocation attached to ctx, or the zero value.
func InvocationFrom(ctx context.Context) Invocation {
	inv, _ := ctx.Value(invocationKey{}).(Invocation)
	return inv
}

// ErrUnknownTransform is returned when a name has no registered transform.
type ErrUnknownTransform struct {
	Name string
}

func (e *ErrUnknownTransform) Error() string {
	return fmt.Sprintf("unknown transform %q", e.Name)
}
