package infer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Namer derives declaration names from transform names.
type Namer struct {
	suffixes []string
}

// NewNamer creates a namer that strips the given suffixes, e.g. "Resource"
// turns "OrderResource" into "Order".
func NewNamer(suffixes []string) *Namer {
	return &Namer{suffixes: suffixes}
}

// TypeName returns the declaration name for a transform. A name that is
// nothing but a suffix is kept as is.
func (n *Namer) TypeName(transform string) string {
	name := transform
	for _, suffix := range n.suffixes {
		if suffix != "" && strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	return Pascal(name)
}

// EnumAlias names the string-literal alias of an enum column.
func (n *Namer) EnumAlias(typeName, column string) string {
	return typeName + Pascal(column)
}

// Pascal converts snake, kebab and dotted names to PascalCase and leaves
// inner capitals alone: "order_item" and "orderItem" both become "OrderItem".
func Pascal(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	// Casers carry state and are not shared between goroutines.
	caser := cases.Title(language.Und, cases.NoLower)

	var b strings.Builder
	for _, p := range parts {
		b.WriteString(caser.String(p))
	}
	out := b.String()
	if out == "" {
		return "Anonymous"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "T" + out
	}
	return out
}

// snake converts a camelCase key to snake_case for column lookup.
func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
