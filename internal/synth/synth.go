// Package synth turns inferred field lists into named TypeScript
// declarations, deduplicated by type name, and the export manifest that
// lists them.
package synth

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dbsmedya/typeprobe/internal/graph"
	"github.com/dbsmedya/typeprobe/internal/infer"
	"github.com/dbsmedya/typeprobe/internal/logger"
)

// Declaration is one generated type.
type Declaration struct {
	TypeName  string
	Transform string
	Entity    string
	Fields    []infer.InferredField
	Imports   []string       // referenced declarations, sorted
	Aliases   []infer.TSType // enum aliases declared next to the interface
}

// Output is the result of one synthesis.
type Output struct {
	Declarations []*Declaration // sorted by type name
	Order        []string       // imports before importers
	Cycles       *graph.CycleInfo
	Unresolved   []graph.Edge // references to types no transform produced
	Manifest     []string
}

// Synthesizer collects inference results. The first top-level result for a
// type name wins; later ones are ignored. A declaration reached only through
// a cross-reference is used when no top-level result for its name arrives,
// since nested captures stop at the relation depth limit. Add is safe for
// concurrent use.
type Synthesizer struct {
	logger *logger.Logger

	mu     sync.Mutex
	decls  map[string]*Declaration
	nested map[string]*Declaration
}

// New creates an empty synthesizer.
func New(log *logger.Logger) *Synthesizer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Synthesizer{
		logger: log.WithPhase("synth"),
		decls:  make(map[string]*Declaration),
		nested: make(map[string]*Declaration),
	}
}

// Add registers a result and its nested declarations. It reports whether the
// result's own type name was new among top-level results.
func (s *Synthesizer) Add(res *infer.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := s.addLocked(s.decls, res)
	for _, n := range res.Nested {
		s.addLocked(s.nested, n)
	}
	return added
}

func (s *Synthesizer) addLocked(into map[string]*Declaration, res *infer.Result) bool {
	if existing, ok := into[res.TypeName]; ok {
		if existing.Transform != res.Transform {
			s.logger.Warnw("Type name already generated from another transform",
				"type", res.TypeName, "kept", existing.Transform, "ignored", res.Transform)
		}
		return false
	}
	into[res.TypeName] = newDeclaration(res)
	return true
}

func newDeclaration(res *infer.Result) *Declaration {
	d := &Declaration{
		TypeName:  res.TypeName,
		Transform: res.Transform,
		Entity:    res.Entity,
		Fields:    res.Fields,
	}
	d.collect()
	return d
}

// collect derives imports and aliases from the fields.
func (d *Declaration) collect() {
	d.Imports = nil
	d.Aliases = nil
	imports := map[string]bool{}
	aliases := map[string]bool{}
	for _, f := range d.Fields {
		for _, ref := range f.Type.References() {
			if ref != d.TypeName && !imports[ref] {
				imports[ref] = true
				d.Imports = append(d.Imports, ref)
			}
		}
		for _, a := range f.Type.Aliases() {
			if !aliases[a.Alias] {
				aliases[a.Alias] = true
				d.Aliases = append(d.Aliases, a)
			}
		}
	}
	sort.Strings(d.Imports)
}

// Len returns the number of distinct type names collected so far.
func (s *Synthesizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.merged())
}

// merged returns the top-level declarations plus the nested ones no
// top-level result replaced.
func (s *Synthesizer) merged() map[string]*Declaration {
	all := make(map[string]*Declaration, len(s.decls)+len(s.nested))
	for name, d := range s.nested {
		all[name] = d
	}
	for name, d := range s.decls {
		all[name] = d
	}
	return all
}

// Synthesize finalizes the collected declarations. References to types that
// were never generated degrade to unknown; an enum alias whose name collides
// with a declaration is rendered inline.
func (s *Synthesizer) Synthesize() (*Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	decls := s.merged()
	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)

	b := graph.NewBuilder()
	for _, name := range names {
		d := decls[name]
		b.Declare(graph.Node{Name: d.TypeName, Transform: d.Transform, Entity: d.Entity}, d.Imports...)
	}
	g, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build declaration graph: %w", err)
	}

	out := &Output{Unresolved: g.Dangling()}
	missing := map[string]map[string]bool{}
	for _, e := range out.Unresolved {
		if missing[e.From] == nil {
			missing[e.From] = map[string]bool{}
		}
		missing[e.From][e.To] = true
		s.logger.Warnw("Referenced type was not generated, using unknown", "type", e.From, "reference", e.To)
	}

	for _, name := range names {
		d := decls[name]
		changed := false
		for i := range d.Fields {
			t, ok := rewrite(d.Fields[i].Type, missing[name], decls)
			if ok {
				d.Fields[i].Type = t
				changed = true
			}
		}
		if changed {
			d.collect()
		}
		out.Declarations = append(out.Declarations, d)
	}

	// rebuild without the degraded edges
	b = graph.NewBuilder()
	for _, d := range out.Declarations {
		b.Declare(graph.Node{Name: d.TypeName, Transform: d.Transform, Entity: d.Entity}, d.Imports...)
	}
	if g, err = b.Build(); err != nil {
		return nil, fmt.Errorf("failed to build declaration graph: %w", err)
	}
	s.logger.Debugw("Declaration graph built", "declarations", g.NodeCount(), "imports", g.EdgeCount())
	out.Order, out.Cycles = g.Order()
	if out.Cycles != nil {
		s.logger.Debugw("Mutually recursive declarations", "types", out.Cycles.CycleParticipants)
	}
	out.Manifest = Manifest(out.Declarations)
	return out, nil
}

// rewrite replaces references to missing types with unknown and inlines
// aliases that collide with declaration names. It reports whether anything
// changed.
func rewrite(t infer.TSType, missing map[string]bool, decls map[string]*Declaration) (infer.TSType, bool) {
	switch t.Kind {
	case infer.Reference:
		if missing[t.Name] {
			return infer.Unknown(), true
		}
	case infer.Literal:
		if _, clash := decls[t.Alias]; t.Alias != "" && clash {
			t.Alias = ""
			return t, true
		}
	case infer.Array:
		if elem, ok := rewrite(*t.Elem, missing, decls); ok {
			return infer.ArrayOf(elem), true
		}
	case infer.Object:
		changed := false
		fields := make([]infer.InferredField, len(t.Fields))
		copy(fields, t.Fields)
		for i := range fields {
			if ft, ok := rewrite(fields[i].Type, missing, decls); ok {
				fields[i].Type = ft
				changed = true
			}
		}
		if changed {
			t.Fields = fields
			return t, true
		}
	}
	return t, false
}

// Manifest returns the export statements of the aggregate index, sorted by
// type name.
func Manifest(decls []*Declaration) []string {
	names := make([]string, 0, len(decls))
	for _, d := range decls {
		names = append(names, d.TypeName)
	}
	sort.Strings(names)

	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = fmt.Sprintf("export * from './%s';", n)
	}
	return lines
}
