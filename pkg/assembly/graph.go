package assembly

import (
	"fmt"
	"strings"
)

// EdgeFunc extracts the IDs a component value depends on.
type EdgeFunc func(value any) []ID

// Graph is a directed dependency graph over component IDs.
// An edge A -> B means A depends on B, so B must be resolved first.
type Graph struct {
	// kind names the graph in errors and DOT output
	kind GraphKind

	// nodes is the set of known IDs, including edge targets
	nodes map[ID]struct{}

	// deps maps an ID to the IDs it depends on
	deps map[ID][]ID

	// dependents maps an ID to the IDs depending on it
	dependents map[ID][]ID
}

// NewGraph creates an empty graph.
func NewGraph(kind GraphKind) *Graph {
	return &Graph{
		kind:       kind,
		nodes:      make(map[ID]struct{}),
		deps:       make(map[ID][]ID),
		dependents: make(map[ID][]ID),
	}
}

// BuildGraph adds a node for every top-level key of cfg and an edge from the
// key to each ID returned by edgeFn for its value. Edge targets are not
// required to exist in cfg.
func BuildGraph(kind GraphKind, cfg Configuration, edgeFn EdgeFunc) *Graph {
	g := NewGraph(kind)
	for _, id := range cfg.IDs() {
		g.AddNode(id)
		for _, dep := range edgeFn(cfg[id]) {
			g.AddEdge(id, dep)
		}
	}
	return g
}

// BuildMergeGraph builds the graph of merge roots.
func BuildMergeGraph(cfg Configuration) *Graph {
	return BuildGraph(GraphMerge, cfg, MergeRoots)
}

// BuildReferenceGraph builds the graph of declared references.
func BuildReferenceGraph(cfg Configuration) *Graph {
	return BuildGraph(GraphReference, cfg, RefTargets)
}

// Kind returns the graph kind.
func (g *Graph) Kind() GraphKind {
	return g.kind
}

// AddNode adds id to the graph.
func (g *Graph) AddNode(id ID) {
	g.nodes[id] = struct{}{}
}

// AddEdge records that from depends on to. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to ID) {
	g.AddNode(from)
	g.AddNode(to)
	for _, existing := range g.deps[from] {
		if existing == to {
			return
		}
	}
	g.deps[from] = append(g.deps[from], to)
	g.dependents[to] = append(g.dependents[to], from)
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id ID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all node IDs in sorted order.
func (g *Graph) Nodes() []ID {
	out := make([]ID, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// DependenciesOf returns a copy of the direct dependencies of id.
func (g *Graph) DependenciesOf(id ID) []ID {
	out := make([]ID, len(g.deps[id]))
	copy(out, g.deps[id])
	sortIDs(out)
	return out
}

// DependentsOf returns a copy of the IDs that directly depend on id.
func (g *Graph) DependentsOf(id ID) []ID {
	out := make([]ID, len(g.dependents[id]))
	copy(out, g.dependents[id])
	sortIDs(out)
	return out
}

// Subgraph returns the graph induced by ids.
func (g *Graph) Subgraph(ids []ID) *Graph {
	keep := make(map[ID]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	sub := NewGraph(g.kind)
	for _, id := range g.Nodes() {
		if !keep[id] {
			continue
		}
		sub.AddNode(id)
		for _, dep := range g.deps[id] {
			if keep[dep] {
				sub.AddEdge(id, dep)
			}
		}
	}
	return sub
}

// DetectCycle returns a cycle path (first node repeated at the end) or nil.
func (g *Graph) DetectCycle() []ID {
	visited := make(map[ID]bool)
	recStack := make(map[ID]bool)

	for _, id := range g.Nodes() {
		if visited[id] {
			continue
		}
		if cycle := g.detectCycleUtil(id, visited, recStack, nil); cycle != nil {
			return cycle
		}
	}
	return nil
}

// detectCycleUtil performs DFS along dependency edges.
func (g *Graph) detectCycleUtil(id ID, visited, recStack map[ID]bool, path []ID) []ID {
	visited[id] = true
	recStack[id] = true
	path = append(path, id)

	for _, dep := range g.DependenciesOf(id) {
		if !visited[dep] {
			if cycle := g.detectCycleUtil(dep, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			for i, p := range path {
				if p == dep {
					cycle := make([]ID, 0, len(path)-i+1)
					cycle = append(cycle, path[i:]...)
					return append(cycle, dep)
				}
			}
		}
	}

	recStack[id] = false
	return nil
}

// Levels groups nodes with Kahn's algorithm: level 0 has no dependencies and
// every node sits one level above its deepest dependency. Nodes inside a
// level are sorted. A cycle yields a structural cycle error.
func (g *Graph) Levels() ([][]ID, error) {
	remaining := make(map[ID]int, len(g.nodes))
	for id := range g.nodes {
		remaining[id] = len(g.deps[id])
	}

	var current []ID
	for id, n := range remaining {
		if n == 0 {
			current = append(current, id)
		}
	}
	sortIDs(current)

	var levels [][]ID
	processed := 0
	for len(current) > 0 {
		levels = append(levels, current)
		processed += len(current)

		var next []ID
		for _, id := range current {
			for _, dependent := range g.dependents[id] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sortIDs(next)
		current = next
	}

	if processed != len(g.nodes) {
		cycle := g.DetectCycle()
		return nil, NewCycleError(g.kind, cycle)
	}
	return levels, nil
}

// TopologicalSort returns the nodes with every dependency before its
// dependents. Any valid order is acceptable to callers; this one is
// deterministic for a given graph.
func (g *Graph) TopologicalSort() ([]ID, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	order := make([]ID, 0, len(g.nodes))
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}

// Closure returns ids together with every node reachable from them, sorted.
func (g *Graph) Closure(ids []ID) []ID {
	seen := make(map[ID]bool)
	stack := append([]ID(nil), ids...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, g.deps[id]...)
	}
	out := make([]ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// ToDOT renders the graph in Graphviz DOT format. Nodes absent from cfg are
// drawn dashed; opaque (non-map) values are drawn as ellipses.
func (g *Graph) ToDOT(cfg Configuration) string {
	var sb strings.Builder

	name := "Graph"
	if g.kind != "" {
		name = strings.ToUpper(string(g.kind[:1])) + string(g.kind[1:]) + "Graph"
	}
	sb.WriteString(fmt.Sprintf("digraph %s {\n", name))
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, id := range g.Nodes() {
		v, present := cfg[id]
		switch {
		case !present:
			sb.WriteString(fmt.Sprintf("  %q [style=dashed, color=red];\n", id))
		case !isMap(v):
			sb.WriteString(fmt.Sprintf("  %q [shape=ellipse];\n", id))
		default:
			sb.WriteString(fmt.Sprintf("  %q;\n", id))
		}
	}
	sb.WriteString("\n")

	for _, id := range g.Nodes() {
		for _, dep := range g.DependenciesOf(id) {
			sb.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", id, dep, edgeStyle(g.kind)))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// edgeStyle returns a DOT style string for the graph kind.
func edgeStyle(kind GraphKind) string {
	switch kind {
	case GraphMerge:
		return "style=dashed, color=blue"
	case GraphReference:
		return "style=solid, color=black"
	default:
		return "style=dotted, color=gray"
	}
}
