package infer

import (
	"fmt"
	"regexp"
	"strings"
)

// TypeKind is the shape of a TSType.
type TypeKind int

const (
	Primitive TypeKind = iota
	// Literal is a union of string literals from an enum column.
	Literal
	// Reference names another generated declaration.
	Reference
	Array
	// Object is an inline anonymous object.
	Object
)

// TSType is an inferred TypeScript type.
type TSType struct {
	Kind   TypeKind
	Name   string   // primitive or referenced declaration name
	Values []string // Literal members
	Alias  string   // Literal alias name, rendered instead of the union when set
	Elem   *TSType  // Array element
	Fields []InferredField
}

// Prim returns a primitive type.
func Prim(name string) TSType {
	return TSType{Kind: Primitive, Name: name}
}

// Unknown is the type of values nothing could be learned about.
func Unknown() TSType {
	return Prim("unknown")
}

// Ref references a generated declaration by name.
func Ref(name string) TSType {
	return TSType{Kind: Reference, Name: name}
}

// ArrayOf wraps elem in an array.
func ArrayOf(elem TSType) TSType {
	return TSType{Kind: Array, Elem: &elem}
}

// String renders the type as TypeScript.
func (t TSType) String() string {
	switch t.Kind {
	case Literal:
		if t.Alias != "" {
			return t.Alias
		}
		return literalUnion(t.Values)
	case Reference:
		return t.Name
	case Array:
		elem := t.Elem.String()
		if t.Elem.Kind == Literal && t.Elem.Alias == "" && len(t.Elem.Values) > 1 {
			elem = "(" + elem + ")"
		}
		return elem + "[]"
	case Object:
		if len(t.Fields) == 0 {
			return "Record<string, never>"
		}
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Signature()
		}
		return "{ " + strings.Join(parts, "; ") + " }"
	default:
		if t.Name == "" {
			return "unknown"
		}
		return t.Name
	}
}

func literalUnion(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), "'", `\'`) + "'"
	}
	return strings.Join(quoted, " | ")
}

// References returns the declaration names t refers to, in first-seen order.
func (t TSType) References() []string {
	var out []string
	seen := map[string]bool{}
	t.walk(func(x TSType) {
		if x.Kind == Reference && !seen[x.Name] {
			seen[x.Name] = true
			out = append(out, x.Name)
		}
	})
	return out
}

// Aliases returns the aliased literal types inside t.
func (t TSType) Aliases() []TSType {
	var out []TSType
	t.walk(func(x TSType) {
		if x.Kind == Literal && x.Alias != "" {
			out = append(out, x)
		}
	})
	return out
}

func (t TSType) walk(fn func(TSType)) {
	fn(t)
	switch t.Kind {
	case Array:
		t.Elem.walk(fn)
	case Object:
		for _, f := range t.Fields {
			f.Type.walk(fn)
		}
	}
}

// Provenance records how a field's type was determined.
type Provenance string

const (
	FromFingerprint Provenance = "fingerprint"
	FromColumn      Provenance = "column"
	FromStructure   Provenance = "structure"
	FromReference   Provenance = "reference"
)

// InferredField is one field of an inferred declaration.
type InferredField struct {
	Name           string
	Type           TSType
	Nullable       bool
	Optional       bool
	CrossReference string // referenced declaration, if any
	Source         string // entity.column the value came from, if known
	Provenance     Provenance
	Ambiguous      bool // provenance could not be established
}

var identPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Signature renders "name?: type | null".
func (f InferredField) Signature() string {
	name := f.Name
	if !identPattern.MatchString(name) {
		name = fmt.Sprintf("'%s'", strings.ReplaceAll(name, "'", `\'`))
	}
	if f.Optional {
		name += "?"
	}
	return name + ": " + f.TypeString()
}

// TypeString renders the field type including null.
func (f InferredField) TypeString() string {
	s := f.Type.String()
	if f.Nullable && !(f.Type.Kind == Primitive && f.Type.Name == "unknown") {
		s += " | null"
	}
	return s
}
