package script

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/dbsmedya/typeprobe/internal/transform"
)

const registryLocal = "typeprobe.registry"

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"resource":   starlark.NewBuiltin("resource", builtinResource),
		"collection": starlark.NewBuiltin("collection", builtinCollection),
	}
}

func lookupTransform(thread *starlark.Thread, fnName, name string) (transform.Transform, error) {
	reg, _ := thread.Local(registryLocal).(*transform.Registry)
	if reg == nil {
		return nil, fmt.Errorf("%s: no transform registry", fnName)
	}
	t, err := reg.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnName, err)
	}
	return t, nil
}

// resource(name, record) -> nested transform output, or None for None.
func builtinResource(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var rec starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &rec); err != nil {
		return nil, err
	}
	if rec == starlark.None {
		return starlark.None, nil
	}
	rv, ok := rec.(*recordValue)
	if !ok {
		return nil, fmt.Errorf("%s: want record, got %s", b.Name(), rec.Type())
	}
	t, err := lookupTransform(thread, b.Name(), name)
	if err != nil {
		return nil, err
	}
	return &nestedValue{res: transform.NewResource(t, rv.rec)}, nil
}

// collection(name, records) -> list of nested transform outputs.
func builtinCollection(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var items starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &items); err != nil {
		return nil, err
	}
	t, err := lookupTransform(thread, b.Name(), name)
	if err != nil {
		return nil, err
	}

	var recs []*transform.Record
	iter := items.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		rv, ok := v.(*recordValue)
		if !ok {
			return nil, fmt.Errorf("%s: want records, got %s", b.Name(), v.Type())
		}
		recs = append(recs, rv.rec)
	}
	return &nestedValue{coll: transform.NewCollection(t, recs)}, nil
}

// recordValue exposes a probe record to scripts. Columns are attributes
// (record.note) and keys (record["note"]); related(name) and loaded(name)
// reach relations.
type recordValue struct {
	rec *transform.Record
}

var (
	_ starlark.HasAttrs = (*recordValue)(nil)
	_ starlark.Mapping  = (*recordValue)(nil)
)

func newRecordValue(rec *transform.Record) starlark.Value {
	if rec == nil {
		return starlark.None
	}
	return &recordValue{rec: rec}
}

func (r *recordValue) String() string        { return fmt.Sprintf("<record %s>", r.rec.Entity) }
func (r *recordValue) Type() string          { return "record" }
func (r *recordValue) Freeze()               {}
func (r *recordValue) Truth() starlark.Bool  { return starlark.True }
func (r *recordValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: record") }

func (r *recordValue) Attr(name string) (starlark.Value, error) {
	if v, ok := r.rec.Get(name); ok {
		return toStarlark(v)
	}
	switch name {
	case "related":
		return starlark.NewBuiltin("related", r.related), nil
	case "loaded":
		return starlark.NewBuiltin("loaded", r.loaded), nil
	case "entity":
		return starlark.String(r.rec.Entity), nil
	}
	return nil, nil
}

func (r *recordValue) AttrNames() []string {
	names := append([]string{}, r.rec.Attributes.Keys()...)
	names = append(names, "entity", "loaded", "related")
	sort.Strings(names)
	return names
}

func (r *recordValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	key, ok := starlark.AsString(k)
	if !ok {
		return nil, false, fmt.Errorf("record key must be string, got %s", k.Type())
	}
	v, found := r.rec.Get(key)
	if !found {
		return nil, false, nil
	}
	sv, err := toStarlark(v)
	return sv, true, err
}

func (r *recordValue) related(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	rel, ok := r.rec.Relation(name)
	if !ok {
		return starlark.None, nil
	}
	if rel.Many {
		items := make([]starlark.Value, 0, len(rel.Records))
		for _, rec := range rel.Records {
			items = append(items, newRecordValue(rec))
		}
		return starlark.NewList(items), nil
	}
	return newRecordValue(rel.First()), nil
}

func (r *recordValue) loaded(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	_, ok := r.rec.Relation(name)
	return starlark.Bool(ok), nil
}

// nestedValue carries a resource or collection through script code untouched.
type nestedValue struct {
	res  *transform.Resource
	coll *transform.Collection
}

func (n *nestedValue) String() string {
	if n.res != nil {
		return fmt.Sprintf("<resource %s>", n.res.Transform.Name())
	}
	return fmt.Sprintf("<collection %s>", n.coll.Transform.Name())
}
func (n *nestedValue) Type() string          { return "resource" }
func (n *nestedValue) Freeze()               {}
func (n *nestedValue) Truth() starlark.Bool  { return starlark.True }
func (n *nestedValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: resource") }

// toStarlark converts a record attribute to a Starlark value.
func toStarlark(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(val), nil
	case []byte:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	default:
		return nil, fmt.Errorf("unsupported attribute type: %T", v)
	}
}

// toGo converts a script result into an output tree. Dicts keep insertion
// order.
func toGo(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i64, ok := val.Int64(); ok {
			return i64, nil
		}
		return val.String(), nil
	case starlark.Float:
		return float64(val), nil
	case *starlark.List:
		out := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := toGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			out[i] = gv
		}
		return out, nil
	case starlark.Tuple:
		out := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := toGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			out[i] = gv
		}
		return out, nil
	case *starlark.Dict:
		obj := transform.NewObject()
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := toGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", string(key), err)
			}
			obj.Set(string(key), gv)
		}
		return obj, nil
	case *recordValue:
		obj := transform.NewObject()
		for el := val.rec.Attributes.Front(); el != nil; el = el.Next() {
			obj.Set(el.Key, el.Value)
		}
		return obj, nil
	case *nestedValue:
		if val.res != nil {
			return val.res, nil
		}
		return val.coll, nil
	default:
		return nil, fmt.Errorf("unsupported result type: %s", v.Type())
	}
}
