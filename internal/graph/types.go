// Package graph holds the import graph between generated declarations.
//
// Nodes are declaration type names. An edge From -> To means the declaration
// From refers to To by name and has to import it. Mutual references are legal
// in the generated code, so cycles are reported, never rejected.
package graph

import "sort"

// Node is one generated declaration.
type Node struct {
	Name      string // declaration type name
	Transform string // transform the declaration was inferred from
	Entity    string // entity the transform was probed with
}

// Edge is an import of To by From.
type Edge struct {
	From string
	To   string
}

// Graph is the import structure of one generation run.
type Graph struct {
	Nodes      map[string]*Node    // type name -> node
	Imports    map[string][]string // type name -> imported type names (outgoing edges)
	ImportedBy map[string][]string // type name -> importing type names (incoming edges)
	edges      map[Edge]bool
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:      make(map[string]*Node),
		Imports:    make(map[string][]string),
		ImportedBy: make(map[string][]string),
		edges:      make(map[Edge]bool),
	}
}

// AddNode adds a declaration node. A nil node gets default values.
func (g *Graph) AddNode(name string, node *Node) {
	if node == nil {
		node = &Node{}
	}
	node.Name = name
	g.Nodes[name] = node
}

// AddEdge records that from imports to. Duplicate edges and self-references
// are ignored: a declaration never imports itself.
func (g *Graph) AddEdge(from, to string) {
	e := Edge{From: from, To: to}
	if from == to || g.edges[e] {
		return
	}
	g.edges[e] = true
	g.Imports[from] = append(g.Imports[from], to)
	g.ImportedBy[to] = append(g.ImportedBy[to], from)
}

// GetImports returns the names a declaration imports, sorted.
func (g *Graph) GetImports(name string) []string {
	out := append([]string(nil), g.Imports[name]...)
	sort.Strings(out)
	return out
}

// GetImportedBy returns the declarations importing name, sorted.
func (g *Graph) GetImportedBy(name string) []string {
	out := append([]string(nil), g.ImportedBy[name]...)
	sort.Strings(out)
	return out
}

// HasNode returns true if the graph contains a node with the given name.
func (g *Graph) HasNode(name string) bool {
	_, exists := g.Nodes[name]
	return exists
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// AllNodes returns all type names, sorted.
func (g *Graph) AllNodes() []string {
	nodes := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		nodes = append(nodes, name)
	}
	sort.Strings(nodes)
	return nodes
}

// AllEdges returns all edges ordered by From, then To.
func (g *Graph) AllEdges() []Edge {
	edges := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// Dangling returns edges whose target is not a declared node.
func (g *Graph) Dangling() []Edge {
	var out []Edge
	for _, e := range g.AllEdges() {
		if !g.HasNode(e.To) {
			out = append(out, e)
		}
	}
	return out
}
