package synth

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/typeprobe/internal/infer"
)

// Render returns the TypeScript source of one declaration: a header naming
// the transform, type-only imports, enum aliases and the interface.
func Render(d *Declaration) string {
	var b strings.Builder

	fmt.Fprintf(&b, "// Generated from %s\n", d.Transform)
	if len(d.Imports) > 0 {
		b.WriteString("\n")
		for _, imp := range d.Imports {
			fmt.Fprintf(&b, "import type { %s } from './%s';\n", imp, imp)
		}
	}

	for _, a := range d.Aliases {
		fmt.Fprintf(&b, "\nexport type %s = %s;\n", a.Alias, infer.TSType{Kind: infer.Literal, Values: a.Values})
	}

	fmt.Fprintf(&b, "\nexport interface %s {\n", d.TypeName)
	for _, f := range d.Fields {
		fmt.Fprintf(&b, "  %s;\n", f.Signature())
	}
	b.WriteString("}\n")
	return b.String()
}

// RenderManifest returns the source of the aggregate index.
func RenderManifest(lines []string) string {
	if len(lines) == 0 {
		return "export {};\n"
	}
	return strings.Join(lines, "\n") + "\n"
}
