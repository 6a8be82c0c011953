package assembly

import (
	"reflect"
	"strings"
	"testing"
)

func indexOf(order []ID, id ID) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestBuildMergeGraph_Edges(t *testing.T) {
	cfg := Configuration{
		"a": map[string]any{"merge": []any{"b", map[string]any{"from": []any{"c", "x"}}}},
		"b": map[string]any{"merge": []any{"c"}},
		"c": map[string]any{"x": map[string]any{"y": 1}},
		"d": 42,
	}

	g := BuildMergeGraph(cfg)

	if g.Kind() != GraphMerge {
		t.Errorf("Expected kind %s, got %s", GraphMerge, g.Kind())
	}
	if got := g.DependenciesOf("a"); !reflect.DeepEqual(got, []ID{"b", "c"}) {
		t.Errorf("Expected a to depend on [b c], got %v", got)
	}
	if got := g.DependentsOf("c"); !reflect.DeepEqual(got, []ID{"a", "b"}) {
		t.Errorf("Expected c dependents [a b], got %v", got)
	}
	if !g.Has("d") {
		t.Error("Expected opaque value d to be a node")
	}
	if len(g.DependenciesOf("d")) != 0 {
		t.Errorf("Expected d to have no dependencies, got %v", g.DependenciesOf("d"))
	}
}

func TestBuildReferenceGraph_AbsentTargetsAreNodes(t *testing.T) {
	cfg := Configuration{
		"app": map[string]any{"refs": []any{"db", "cache"}},
		"db":  map[string]any{},
	}

	g := BuildReferenceGraph(cfg)

	if !g.Has("cache") {
		t.Error("Expected absent target cache to be a node")
	}
	if got := g.Nodes(); !reflect.DeepEqual(got, []ID{"app", "cache", "db"}) {
		t.Errorf("Expected nodes [app cache db], got %v", got)
	}
}

func TestGraph_AddEdge_Dedup(t *testing.T) {
	g := NewGraph(GraphReference)
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")

	if got := g.DependenciesOf("a"); len(got) != 1 {
		t.Errorf("Expected 1 dependency, got %v", got)
	}
	if got := g.DependentsOf("b"); len(got) != 1 {
		t.Errorf("Expected 1 dependent, got %v", got)
	}
}

func TestGraph_TopologicalSort_DependencyOrder(t *testing.T) {
	g := NewGraph(GraphReference)
	g.AddEdge("app", "db")
	g.AddEdge("app", "cache")
	g.AddEdge("db", "disk")
	g.AddNode("lonely")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(order) != 5 {
		t.Fatalf("Expected 5 nodes in order, got %v", order)
	}

	for _, id := range g.Nodes() {
		for _, dep := range g.DependenciesOf(id) {
			if indexOf(order, dep) > indexOf(order, id) {
				t.Errorf("Expected %s before %s in %v", dep, id, order)
			}
		}
	}
}

func TestGraph_Levels(t *testing.T) {
	g := NewGraph(GraphMerge)
	g.AddEdge("c", "b")
	g.AddEdge("b", "a")
	g.AddEdge("d", "a")

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := [][]ID{{"a"}, {"b", "d"}, {"c"}}
	if !reflect.DeepEqual(levels, expected) {
		t.Errorf("Expected levels %v, got %v", expected, levels)
	}
}

func TestGraph_DetectCycle(t *testing.T) {
	tests := []struct {
		name    string
		edges   [][2]ID
		wantNil bool
		wantLen int
	}{
		{name: "acyclic", edges: [][2]ID{{"a", "b"}, {"b", "c"}}, wantNil: true},
		{name: "self loop", edges: [][2]ID{{"a", "a"}}, wantLen: 2},
		{name: "two cycle", edges: [][2]ID{{"a", "b"}, {"b", "a"}}, wantLen: 3},
		{name: "three cycle", edges: [][2]ID{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"d", "a"}}, wantLen: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph(GraphMerge)
			for _, e := range tt.edges {
				g.AddEdge(e[0], e[1])
			}

			cycle := g.DetectCycle()
			if tt.wantNil {
				if cycle != nil {
					t.Errorf("Expected no cycle, got %v", cycle)
				}
				return
			}
			if len(cycle) != tt.wantLen {
				t.Fatalf("Expected cycle of length %d, got %v", tt.wantLen, cycle)
			}
			if cycle[0] != cycle[len(cycle)-1] {
				t.Errorf("Expected cycle to start and end on the same node, got %v", cycle)
			}
		})
	}
}

func TestGraph_Levels_CycleError(t *testing.T) {
	g := NewGraph(GraphReference)
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	_, err := g.Levels()
	if !IsStructuralCycle(err) {
		t.Fatalf("Expected structural cycle error, got: %v", err)
	}

	aerr := err.(*Error)
	if aerr.Graph != GraphReference {
		t.Errorf("Expected graph %s, got %s", GraphReference, aerr.Graph)
	}
	if len(aerr.Cycle) != 3 {
		t.Errorf("Expected cycle path of 3, got %v", aerr.Cycle)
	}
}

func TestGraph_Closure(t *testing.T) {
	g := NewGraph(GraphReference)
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddNode("d")

	if got := g.Closure([]ID{"a"}); !reflect.DeepEqual(got, []ID{"a", "b", "c"}) {
		t.Errorf("Expected closure [a b c], got %v", got)
	}
	if got := g.Closure([]ID{"b", "d"}); !reflect.DeepEqual(got, []ID{"b", "c", "d"}) {
		t.Errorf("Expected closure [b c d], got %v", got)
	}
}

func TestGraph_Subgraph(t *testing.T) {
	g := NewGraph(GraphReference)
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")
	g.AddEdge("d", "e")

	sub := g.Subgraph([]ID{"d", "e"})
	if sub.DetectCycle() != nil {
		t.Error("Expected subgraph without the cycle to be acyclic")
	}
	if sub.Has("a") {
		t.Error("Expected a to be excluded from subgraph")
	}
}

func TestGraph_ToDOT(t *testing.T) {
	cfg := Configuration{
		"app":  map[string]any{"refs": []any{"db", "port"}},
		"port": 8080,
	}

	dot := BuildReferenceGraph(cfg).ToDOT(cfg)

	for _, want := range []string{
		"digraph ReferenceGraph {",
		`"db" [style=dashed, color=red];`,
		`"port" [shape=ellipse];`,
		`"app" -> "db"`,
		`"app" -> "port"`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("Expected DOT output to contain %q, got:\n%s", want, dot)
		}
	}
}
