package graph

import (
	"fmt"
)

// Builder collects declarations and their imports and constructs the graph.
type Builder struct {
	nodes   []Node
	imports map[string][]string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{imports: make(map[string][]string)}
}

// Declare adds a declaration and the type names it refers to.
func (b *Builder) Declare(node Node, imports ...string) {
	b.nodes = append(b.nodes, node)
	b.imports[node.Name] = append(b.imports[node.Name], imports...)
}

// Build constructs the graph. A declaration name may only be declared once;
// imports of undeclared names are kept and reported by Graph.Dangling.
func (b *Builder) Build() (*Graph, error) {
	g := NewGraph()

	for i := range b.nodes {
		node := b.nodes[i]
		if node.Name == "" {
			return nil, fmt.Errorf("declaration from transform %q has no type name", node.Transform)
		}
		if g.HasNode(node.Name) {
			return nil, fmt.Errorf("duplicate declaration: type %q is declared more than once", node.Name)
		}
		g.AddNode(node.Name, &node)
	}

	for _, node := range b.nodes {
		for _, imp := range b.imports[node.Name] {
			if imp == "" {
				return nil, fmt.Errorf("declaration %q imports an empty type name", node.Name)
			}
			g.AddEdge(node.Name, imp)
		}
	}

	return g, nil
}
