package probe

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/dbsmedya/typeprobe/internal/transform"
	"github.com/dbsmedya/typeprobe/internal/types"
)

// DefaultMaxNesting bounds how deep nested transforms are resolved. Deeper
// cross-references are kept by name only.
const DefaultMaxNesting = 8

// capturer turns a raw output tree into Values, resolving nested transforms
// as it goes.
type capturer struct {
	ctx        context.Context
	maxNesting int
}

// Capture converts a raw output tree without resolving nested transforms
// beyond maxNesting levels.
func Capture(ctx context.Context, raw interface{}, maxNesting int) (Value, error) {
	c := &capturer{ctx: ctx, maxNesting: maxNesting}
	return c.capture(raw, 0)
}

func (c *capturer) capture(raw interface{}, depth int) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case bool, string:
		return Scalar{Raw: v}, nil
	case []byte:
		return Scalar{Raw: string(v)}, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Scalar{Raw: types.ToInt64(v)}, nil
	case float32, float64:
		return Scalar{Raw: types.ToFloat64(v)}, nil
	case time.Time:
		return Scalar{Raw: v.UTC().Format(time.RFC3339)}, nil
	case []interface{}:
		items := make([]Value, 0, len(v))
		for i, item := range v {
			cv, err := c.capture(item, depth)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			items = append(items, cv)
		}
		return List{Items: items}, nil
	case *transform.Object:
		obj := NewObject()
		for el := v.Front(); el != nil; el = el.Next() {
			cv, err := c.capture(el.Value, depth)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", el.Key, err)
			}
			obj.Set(el.Key, cv)
		}
		return obj, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			cv, err := c.capture(v[k], depth)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			obj.Set(k, cv)
		}
		return obj, nil
	case *transform.Resource:
		if v == nil || v.Record == nil {
			return Null{}, nil
		}
		ref := CrossReference{Transform: v.Transform.Name(), Entity: v.Record.Entity}
		nested, err := c.nested(v.Transform, v.Record, depth)
		if err != nil {
			return nil, err
		}
		ref.Nested = nested
		return ref, nil
	case *transform.Collection:
		if v == nil {
			return Null{}, nil
		}
		ref := CrossReference{Transform: v.Transform.Name(), Many: true}
		if len(v.Records) > 0 {
			ref.Entity = v.Records[0].Entity
			nested, err := c.nested(v.Transform, v.Records[0], depth)
			if err != nil {
				return nil, err
			}
			ref.Nested = nested
		}
		return ref, nil
	}
	return c.captureReflect(raw, depth)
}

// captureReflect handles typed slices and string-keyed maps.
func (c *capturer) captureReflect(raw interface{}, depth int) (Value, error) {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]interface{}, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return c.capture(items, depth)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		m := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return c.capture(m, depth)
	case reflect.Ptr:
		if rv.IsNil() {
			return Null{}, nil
		}
		return c.capture(rv.Elem().Interface(), depth)
	}
	return nil, fmt.Errorf("unsupported output value of type %T", raw)
}

func (c *capturer) nested(t transform.Transform, rec *transform.Record, depth int) (*Object, error) {
	if depth >= c.maxNesting {
		return nil, nil
	}
	out, err := t.Apply(c.ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("nested transform %s: %w", t.Name(), err)
	}
	v, err := c.capture(out, depth+1)
	if err != nil {
		return nil, fmt.Errorf("nested transform %s: %w", t.Name(), err)
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("nested transform %s returned %T, want an object", t.Name(), out)
	}
	return obj, nil
}
