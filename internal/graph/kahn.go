package graph

import (
	"container/list"
	"sort"
)

// ProcessingQueue holds the declarations whose imports are all emitted.
type ProcessingQueue struct {
	queue *list.List
}

// NewProcessingQueue creates a new empty processing queue.
func NewProcessingQueue() *ProcessingQueue {
	return &ProcessingQueue{
		queue: list.New(),
	}
}

// Enqueue adds nodes to the back of the queue in sorted order.
func (pq *ProcessingQueue) Enqueue(nodes ...string) {
	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)
	for _, n := range sorted {
		pq.queue.PushBack(n)
	}
}

// Dequeue removes and returns the node at the front of the queue.
// Returns empty string and false if queue is empty.
func (pq *ProcessingQueue) Dequeue() (string, bool) {
	if pq.queue.Len() == 0 {
		return "", false
	}
	elem := pq.queue.Front()
	pq.queue.Remove(elem)
	return elem.Value.(string), true
}

// Len returns the number of nodes in the queue.
func (pq *ProcessingQueue) Len() int {
	return pq.queue.Len()
}

// IsEmpty returns true if the queue has no nodes.
func (pq *ProcessingQueue) IsEmpty() bool {
	return pq.queue.Len() == 0
}

// CalculatePending counts, for every node, the declared nodes it imports.
// Imports of undeclared names are not waited on.
func (g *Graph) CalculatePending() map[string]int {
	pending := make(map[string]int, len(g.Nodes))
	for name := range g.Nodes {
		pending[name] = 0
		for _, imp := range g.Imports[name] {
			if g.HasNode(imp) {
				pending[name]++
			}
		}
	}
	return pending
}

func (g *Graph) initializeQueue(pending map[string]int) *ProcessingQueue {
	var ready []string
	for name, n := range pending {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	pq := NewProcessingQueue()
	pq.Enqueue(ready...)
	return pq
}

// CycleInfo describes the declarations Kahn's algorithm could not order.
type CycleInfo struct {
	TotalNodes        int      // Total number of nodes in the graph
	ProcessedNodes    int      // Number of nodes ordered
	UnprocessedNodes  []string // Nodes in a cycle or importing one
	CycleParticipants []string // Nodes that are part of a cycle (subset of UnprocessedNodes)
	CyclePath         []string // e.g. [A, B, A]
}

// Order returns every declaration with imports before importers. Nodes that
// Kahn's algorithm cannot order because of a cycle follow in name order, and
// the returned CycleInfo describes them; it is nil for an acyclic graph.
func (g *Graph) Order() ([]string, *CycleInfo) {
	pending := g.CalculatePending()
	queue := g.initializeQueue(pending)

	result := make([]string, 0, len(g.Nodes))
	processed := make(map[string]bool, len(g.Nodes))

	for !queue.IsEmpty() {
		node, _ := queue.Dequeue()
		result = append(result, node)
		processed[node] = true

		var ready []string
		for _, importer := range g.GetImportedBy(node) {
			if !g.HasNode(importer) {
				continue
			}
			pending[importer]--
			if pending[importer] == 0 {
				ready = append(ready, importer)
			}
		}
		queue.Enqueue(ready...)
	}

	if len(result) == len(g.Nodes) {
		return result, nil
	}

	var unprocessed []string
	unprocessedSet := make(map[string]bool)
	for _, name := range g.AllNodes() {
		if !processed[name] {
			unprocessed = append(unprocessed, name)
			unprocessedSet[name] = true
		}
	}

	var participants []string
	for _, node := range unprocessed {
		if g.canReachSelf(node, unprocessedSet) {
			participants = append(participants, node)
		}
	}

	var path []string
	if len(participants) > 0 {
		path = g.FindCyclePath(participants[0], unprocessedSet)
	}

	return append(result, unprocessed...), &CycleInfo{
		TotalNodes:        len(g.Nodes),
		ProcessedNodes:    len(processed),
		UnprocessedNodes:  unprocessed,
		CycleParticipants: participants,
		CyclePath:         path,
	}
}

// FindCyclePath finds a cycle through start within allowedNodes. The start
// node appears at both ends of the returned path.
func (g *Graph) FindCyclePath(start string, allowedNodes map[string]bool) []string {
	visited := make(map[string]bool)
	path := []string{start}

	if g.dfsFindPath(start, start, visited, allowedNodes, &path) {
		return path
	}
	return nil
}

func (g *Graph) dfsFindPath(current, target string, visited, allowedNodes map[string]bool, path *[]string) bool {
	for _, next := range g.GetImports(current) {
		if !allowedNodes[next] {
			continue
		}
		if next == target {
			*path = append(*path, target)
			return true
		}
		if visited[next] {
			continue
		}

		visited[next] = true
		*path = append(*path, next)
		if g.dfsFindPath(next, target, visited, allowedNodes, path) {
			return true
		}
		// backtrack
		*path = (*path)[:len(*path)-1]
	}
	return false
}

func (g *Graph) canReachSelf(start string, allowedNodes map[string]bool) bool {
	visited := make(map[string]bool)
	return g.dfsCanReach(start, start, visited, allowedNodes, true)
}

func (g *Graph) dfsCanReach(current, target string, visited, allowedNodes map[string]bool, isStart bool) bool {
	if current == target && !isStart {
		return true
	}
	if visited[current] || !allowedNodes[current] {
		return false
	}
	visited[current] = true

	for _, next := range g.Imports[current] {
		if g.dfsCanReach(next, target, visited, allowedNodes, false) {
			return true
		}
	}
	return false
}
