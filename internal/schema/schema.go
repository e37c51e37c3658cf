// Package schema describes entities, their columns and their relations as
// discovered from a migrated sandbox database.
package schema

import (
	"fmt"
	"strings"
)

// Kind is the declared kind of a column after normalization of the
// engine-specific type name.
type Kind int

const (
	KindUnknown Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindText
	KindTemporal
	KindJSON
	KindEnum
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindInteger:  "integer",
	KindFloat:    "float",
	KindBoolean:  "boolean",
	KindText:     "text",
	KindTemporal: "temporal",
	KindJSON:     "json",
	KindEnum:     "enum",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsNumeric reports whether values of this kind are numbers.
func (k Kind) IsNumeric() bool {
	return k == KindInteger || k == KindFloat
}

// TSType maps the kind onto a TypeScript primitive.
// Enums are rendered as string literal unions elsewhere; here they are plain strings.
func (k Kind) TSType() string {
	switch k {
	case KindInteger, KindFloat:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindText, KindTemporal, KindEnum:
		return "string"
	default:
		return "unknown"
	}
}

// Range is an inclusive numeric bound declared by a CHECK constraint.
type Range struct {
	Min float64
	Max float64
}

// Column is one attribute of an entity.
type Column struct {
	Name         string
	Kind         Kind
	DeclaredType string
	Nullable     bool
	PrimaryKey   bool
	EnumValues   []string
	Range        *Range
	MaxLength    int // 0 means unbounded
}

// HasEnum reports whether the column carries an enumerated value set.
func (c Column) HasEnum() bool {
	return len(c.EnumValues) > 0
}

// Validate checks the internal consistency of the column.
func (c Column) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("column name is empty")
	}
	if c.Range != nil && c.Range.Min > c.Range.Max {
		return fmt.Errorf("column %s: range min %v exceeds max %v", c.Name, c.Range.Min, c.Range.Max)
	}
	if c.MaxLength < 0 {
		return fmt.Errorf("column %s: negative max length %d", c.Name, c.MaxLength)
	}
	return nil
}

// Multiplicity of a relation.
type Multiplicity string

const (
	One  Multiplicity = "one"
	Many Multiplicity = "many"
)

// Relation links an entity to another entity by name.
type Relation struct {
	Name         string
	Target       string // target entity id
	Multiplicity Multiplicity
}

// IsMany reports whether the relation yields a collection.
func (r Relation) IsMany() bool {
	return r.Multiplicity == Many
}

// Entity is a persisted record type together with the transform that
// projects it into an output shape.
type Entity struct {
	ID        string
	Table     string
	Columns   []Column
	Relations []Relation
	Transform string
}

// Column returns the named column.
func (e *Entity) Column(name string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the first primary key column, if any.
func (e *Entity) PrimaryKey() (Column, bool) {
	for _, c := range e.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}

// Relation returns the named relation.
func (e *Entity) Relation(name string) (Relation, bool) {
	for _, r := range e.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// Validate checks the entity for missing identifiers and duplicate names.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entity id is empty")
	}
	if e.Table == "" {
		return fmt.Errorf("entity %s: table is empty", e.ID)
	}
	seen := make(map[string]bool, len(e.Columns))
	for _, c := range e.Columns {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("entity %s: %w", e.ID, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("entity %s: duplicate column %s", e.ID, c.Name)
		}
		seen[c.Name] = true
	}
	rels := make(map[string]bool, len(e.Relations))
	for _, r := range e.Relations {
		if r.Name == "" || r.Target == "" {
			return fmt.Errorf("entity %s: relation requires name and target", e.ID)
		}
		if rels[r.Name] {
			return fmt.Errorf("entity %s: duplicate relation %s", e.ID, r.Name)
		}
		rels[r.Name] = true
	}
	return nil
}

// KindFromDeclaredType normalizes a declared SQL column type into a Kind.
// Both SQLite affinity names and MySQL type names are understood.
func KindFromDeclaredType(decl string) Kind {
	full := strings.ToLower(strings.TrimSpace(decl))
	// tinyint(1) is MySQL's boolean
	if full == "tinyint(1)" || strings.HasPrefix(full, "tinyint(1) ") {
		return KindBoolean
	}
	t := full
	if i := strings.IndexAny(t, "( "); i >= 0 {
		t = t[:i]
	}

	switch t {
	case "int", "integer", "bigint", "smallint", "mediumint", "tinyint", "int2", "int8":
		return KindInteger
	case "real", "double", "float", "numeric", "decimal":
		return KindFloat
	case "bool", "boolean":
		return KindBoolean
	case "varchar", "char", "text", "tinytext", "mediumtext", "longtext", "clob", "string", "uuid", "nvarchar", "nchar":
		return KindText
	case "date", "datetime", "timestamp", "time", "year":
		return KindTemporal
	case "json", "jsonb":
		return KindJSON
	case "enum", "set":
		return KindEnum
	case "blob", "binary", "varbinary":
		return KindText
	}

	// SQLite type affinity rules
	switch {
	case strings.Contains(full, "int"):
		return KindInteger
	case strings.Contains(full, "char"), strings.Contains(full, "clob"), strings.Contains(full, "text"):
		return KindText
	case strings.Contains(full, "real"), strings.Contains(full, "floa"), strings.Contains(full, "doub"):
		return KindFloat
	}
	return KindUnknown
}
