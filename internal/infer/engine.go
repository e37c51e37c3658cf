// Package infer reconciles the full and null probe outputs of an entity into
// a typed field list.
//
// Optionality and nullability come from the difference between the two
// outputs: a key missing from the null output is optional, a key whose null
// output value is null is nullable. A key that is null in the full output is
// nullable as well, whatever the null output holds. Base types come, in order, from nested
// transform results, collections, fingerprint provenance, seeded column
// values and finally the structure of the value itself.
package infer

import (
	"fmt"
	"sync"

	"github.com/dbsmedya/typeprobe/internal/fingerprint"
	"github.com/dbsmedya/typeprobe/internal/logger"
	"github.com/dbsmedya/typeprobe/internal/probe"
	"github.com/dbsmedya/typeprobe/internal/schema"
	"github.com/dbsmedya/typeprobe/internal/types"
)

// ProvenanceAmbiguity is a value whose source column could not be
// established. It is never fatal; the field falls back to structural typing.
type ProvenanceAmbiguity struct {
	Entity string
	Field  string
	Value  interface{}
	Reason string
}

func (p *ProvenanceAmbiguity) Error() string {
	return fmt.Sprintf("provenance of %s.%s (%v) is ambiguous: %s", p.Entity, p.Field, p.Value, p.Reason)
}

// Result is the inferred declaration of one transform output.
type Result struct {
	Entity    string
	Transform string
	TypeName  string
	Fields    []InferredField

	// Nested holds declarations reached through cross-references, in the
	// order they were found. Only set on top-level results.
	Nested []*Result
	// Ambiguities collects every provenance ambiguity of the result and its
	// nested declarations.
	Ambiguities []*ProvenanceAmbiguity
}

// Engine infers field lists. Register every entity before calling Infer;
// Infer is then safe for concurrent use.
type Engine struct {
	registry *fingerprint.Registry
	namer    *Namer
	logger   *logger.Logger

	mu       sync.RWMutex
	entities map[string]*schema.Entity
	seeds    map[string]types.ProbePair
}

// NewEngine creates an engine resolving provenance against registry.
func NewEngine(registry *fingerprint.Registry, namer *Namer, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if namer == nil {
		namer = NewNamer(nil)
	}
	return &Engine{
		registry: registry,
		namer:    namer,
		logger:   log.WithPhase("infer"),
		entities: make(map[string]*schema.Entity),
		seeds:    make(map[string]types.ProbePair),
	}
}

// Register makes an entity and its seeded probe values available for
// column matching.
func (e *Engine) Register(ent *schema.Entity, seeds types.ProbePair) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entities[ent.ID] = ent
	e.seeds[ent.ID] = seeds
}

// Namer returns the engine's namer.
func (e *Engine) Namer() *Namer {
	return e.namer
}

func (e *Engine) entity(id string) (*schema.Entity, types.ProbePair) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.entities[id], e.seeds[id]
}

// Infer reconciles one entity's probe outputs.
func (e *Engine) Infer(entityID string, out *probe.Outputs) *Result {
	r := &run{engine: e, seen: map[string]bool{}}
	name := e.namer.TypeName(out.Transform)
	r.seen[name] = true

	res := &Result{Entity: entityID, Transform: out.Transform, TypeName: name}
	r.root = res

	ent, seeds := e.entity(entityID)
	res.Fields = r.fields(&scope{entity: ent, seeds: seeds, typeName: name, top: true}, out.Full, out.Null)

	log := e.logger.WithEntity(entityID)
	for _, a := range res.Ambiguities {
		log.Debugw("Provenance ambiguity", "field", a.Field, "reason", a.Reason)
	}
	return res
}

type run struct {
	engine *Engine
	root   *Result
	seen   map[string]bool
}

// scope is the declaration a field list belongs to.
type scope struct {
	entity   *schema.Entity
	seeds    types.ProbePair
	typeName string
	top      bool // fields of the declaration itself, not of an inline object
}

func (s *scope) inline() *scope {
	cp := *s
	cp.top = false
	return &cp
}

func (r *run) fields(sc *scope, full, null *probe.Object) []InferredField {
	keys := full.Keys()
	for _, k := range null.Keys() {
		if _, ok := full.Get(k); !ok {
			keys = append(keys, k)
		}
	}

	out := make([]InferredField, 0, len(keys))
	for _, key := range keys {
		fv, inFull := full.Get(key)
		nv, inNull := null.Get(key)

		f := InferredField{
			Name:     key,
			Optional: !inNull,
			Nullable: inNull && probe.IsNull(nv),
		}

		sample, other := fv, nv
		switch {
		case !inFull:
			// only produced under the null probe
			f.Optional, f.Nullable = true, true
			sample, other = nv, nil
		case probe.IsNull(fv):
			f.Nullable = true
			if inNull && !probe.IsNull(nv) {
				sample, other = nv, nil
			}
		}

		r.describe(sc, &f, sample, other)
		out = append(out, f)
	}
	return out
}

// describe sets the type of f from sample. other is the value at the same
// position in the null output, if any.
func (r *run) describe(sc *scope, f *InferredField, sample, other probe.Value) {
	switch v := sample.(type) {
	case probe.CrossReference:
		name := r.engine.namer.TypeName(v.Transform)
		f.CrossReference = name
		f.Provenance = FromReference
		f.Type = Ref(name)
		if v.Many {
			f.Type = ArrayOf(f.Type)
		}
		r.nested(v, other)

	case probe.List:
		if len(v.Items) == 0 {
			f.Type = ArrayOf(Unknown())
			f.Provenance = FromStructure
			return
		}
		var otherElem probe.Value
		if ol, ok := other.(probe.List); ok && len(ol.Items) > 0 {
			otherElem = ol.Items[0]
		}
		elem := InferredField{Name: f.Name}
		r.describe(sc.inline(), &elem, v.Items[0], otherElem)
		f.Type = ArrayOf(elem.Type)
		f.CrossReference = elem.CrossReference
		f.Source = elem.Source
		f.Provenance = elem.Provenance
		f.Ambiguous = elem.Ambiguous

	case *probe.Object:
		otherObj, ok := other.(*probe.Object)
		if !ok {
			otherObj = v
		}
		f.Type = TSType{Kind: Object, Fields: r.fields(sc.inline(), v, otherObj)}
		f.Provenance = FromStructure

	case probe.Scalar:
		r.scalar(sc, f, v, other)

	default:
		f.Type = Unknown()
		f.Provenance = FromStructure
	}
}

// nested infers the declaration behind a cross-reference once per result.
func (r *run) nested(ref probe.CrossReference, other probe.Value) {
	if ref.Nested == nil {
		return
	}
	name := r.engine.namer.TypeName(ref.Transform)
	if r.seen[name] {
		return
	}
	r.seen[name] = true

	nullNested := ref.Nested
	if o, ok := other.(probe.CrossReference); ok && o.Nested != nil && o.Transform == ref.Transform {
		nullNested = o.Nested
	}

	ent, seeds := r.engine.entity(ref.Entity)
	res := &Result{Entity: ref.Entity, Transform: ref.Transform, TypeName: name}
	r.root.Nested = append(r.root.Nested, res)
	res.Fields = r.fields(&scope{entity: ent, seeds: seeds, typeName: name, top: true}, ref.Nested, nullNested)
}

func (r *run) scalar(sc *scope, f *InferredField, s probe.Scalar, other probe.Value) {
	str, isString := s.Raw.(string)

	if isString {
		if fp, ok := r.engine.registry.Resolve(str); ok && fp.Kind != schema.KindUnknown {
			f.Type = Prim(fp.Kind.TSType())
			f.Source = fp.EntityID + "." + fp.Column
			f.Provenance = FromFingerprint
			return
		}
		if r.engine.registry.IsTruncated(str) {
			f.Ambiguous = true
			r.ambiguity(sc, f.Name, str, "fingerprint was truncated by the column length")
		}
	}

	if col, ok := r.matchColumn(sc, f, s, other); ok {
		f.Type = r.columnType(sc, col)
		f.Source = sc.entity.ID + "." + col.Name
		f.Provenance = FromColumn
		return
	}

	f.Type = structural(s.Raw)
	f.Provenance = FromStructure
}

func (r *run) ambiguity(sc *scope, field string, value interface{}, reason string) {
	entity := sc.typeName
	if sc.entity != nil {
		entity = sc.entity.ID
	}
	r.root.Ambiguities = append(r.root.Ambiguities, &ProvenanceAmbiguity{
		Entity: entity, Field: field, Value: value, Reason: reason,
	})
}

// matchColumn finds the column a non-fingerprint value came from: first by
// its seeded enum value, then, for top-level fields, by name.
func (r *run) matchColumn(sc *scope, f *InferredField, s probe.Scalar, other probe.Value) (schema.Column, bool) {
	if sc.entity == nil {
		return schema.Column{}, false
	}

	var candidates []schema.Column
	if sc.seeds.Full != nil {
		for _, col := range sc.entity.Columns {
			if !col.HasEnum() {
				continue
			}
			seeded, _ := sc.seeds.Full.Values.Get(col.Name)
			if !sameValue(seeded, s.Raw) {
				continue
			}
			if nullOut, ok := other.(probe.Scalar); ok && sc.seeds.Null != nil {
				if nullSeed, _ := sc.seeds.Null.Values.Get(col.Name); nullSeed != nil && !sameValue(nullSeed, nullOut.Raw) {
					continue
				}
			}
			candidates = append(candidates, col)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], true
	case 0:
	default:
		for _, col := range candidates {
			if col.Name == f.Name || col.Name == snake(f.Name) {
				return col, true
			}
		}
		f.Ambiguous = true
		r.ambiguity(sc, f.Name, s.Raw, fmt.Sprintf("value matches %d enum columns", len(candidates)))
		return schema.Column{}, false
	}

	if !sc.top {
		return schema.Column{}, false
	}
	for _, name := range []string{f.Name, snake(f.Name)} {
		if col, ok := sc.entity.Column(name); ok && compatible(col, s.Raw) {
			return col, true
		}
	}
	return schema.Column{}, false
}

func (r *run) columnType(sc *scope, col schema.Column) TSType {
	if col.HasEnum() {
		return TSType{
			Kind:   Literal,
			Values: append([]string(nil), col.EnumValues...),
			Alias:  r.engine.namer.EnumAlias(sc.typeName, col.Name),
		}
	}
	if col.Kind == schema.KindUnknown {
		return Unknown()
	}
	return Prim(col.Kind.TSType())
}

// compatible reports whether v could have been read from col.
func compatible(col schema.Column, v interface{}) bool {
	switch col.Kind {
	case schema.KindInteger, schema.KindFloat:
		return types.IsNumber(v)
	case schema.KindBoolean:
		if _, ok := v.(bool); ok {
			return true
		}
		if types.IsNumber(v) {
			n := types.ToFloat64(v)
			return n == 0 || n == 1
		}
		return false
	case schema.KindEnum:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, ev := range col.EnumValues {
			if ev == s {
				return true
			}
		}
		return false
	case schema.KindText, schema.KindTemporal, schema.KindJSON:
		_, ok := v.(string)
		return ok
	}
	return false
}

func sameValue(a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprint(types.NormalizeDBValue(a)) == fmt.Sprint(types.NormalizeDBValue(b))
}

// structural types a scalar by its Go type alone.
func structural(v interface{}) TSType {
	switch v.(type) {
	case bool:
		return Prim("boolean")
	case string:
		return Prim("string")
	}
	if types.IsNumber(v) {
		return Prim("number")
	}
	return Unknown()
}
