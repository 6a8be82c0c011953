package assembly

import (
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

func flatMapGen() *rapid.Generator[map[string]any] {
	return rapid.Custom(func(t *rapid.T) map[string]any {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-e]`), 0, 5, rapid.ID[string]).Draw(t, "keys")
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			out[k] = rapid.IntRange(0, 100).Draw(t, "value")
		}
		return out
	})
}

func TestProperty_DeepMergeRightBias(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		left := flatMapGen().Draw(rt, "left")
		right := flatMapGen().Draw(rt, "right")

		merged := DeepMerge(left, right).(map[string]any)

		for k, v := range right {
			if merged[k] != v {
				rt.Fatalf("key %s: expected right value %v, got %v", k, v, merged[k])
			}
		}
		for k, v := range left {
			if _, inRight := right[k]; !inRight && merged[k] != v {
				rt.Fatalf("key %s: expected left value %v, got %v", k, v, merged[k])
			}
		}
		for k := range merged {
			_, inLeft := left[k]
			_, inRight := right[k]
			if !inLeft && !inRight {
				rt.Fatalf("unexpected key %s", k)
			}
		}
	})
}

func TestProperty_NormalizeIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		from := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,4}`), 1, 3).Draw(rt, "from")
		to := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,4}`), 0, 3).Draw(rt, "to")

		raw := map[string]any{"from": toAnySlice(from), "to": toAnySlice(to)}
		if rapid.Bool().Draw(rt, "keyed") {
			keys := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,3}`), 1, 3).Draw(rt, "select")
			raw["select"] = toAnySlice(keys)
		}

		once, ok := NormalizeMergeDef(raw)
		if !ok {
			rt.Fatalf("expected %v to normalize", raw)
		}
		twice, ok := NormalizeMergeDef(once.Raw())
		if !ok || !reflect.DeepEqual(once, twice) {
			rt.Fatalf("expected stable normalization: %v then %v", once, twice)
		}
	})
}

// referenceDAG builds n components where component i may only reference
// components with a lower index, so the reference graph is always acyclic.
func referenceDAG(rt *rapid.T, n int) Configuration {
	cfg := make(Configuration, n)
	for i := 0; i < n; i++ {
		var refs []any
		for j := 0; j < i; j++ {
			if rapid.Bool().Draw(rt, fmt.Sprintf("ref-%d-%d", i, j)) {
				refs = append(refs, fmt.Sprintf("c%d", j))
			}
		}
		comp := map[string]any{"index": i}
		if len(refs) > 0 {
			comp["refs"] = refs
		}
		cfg[ID(fmt.Sprintf("c%d", i))] = comp
	}
	return cfg
}

func TestProperty_AssembleOrderRespectsReferences(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		cfg := referenceDAG(rt, n)

		asm, err := Assemble(cfg)
		if err != nil {
			rt.Fatalf("expected no error, got: %v", err)
		}
		if len(asm.Order) != n {
			rt.Fatalf("expected %d components in order, got %v", n, asm.Order)
		}
		for id, refs := range asm.Refs {
			for _, target := range refs.Targets() {
				if indexOf(asm.Order, target) > indexOf(asm.Order, id) {
					rt.Fatalf("expected %s before %s in %v", target, id, asm.Order)
				}
			}
		}
	})
}

func TestProperty_SubgraphIsClosed(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		cfg := referenceDAG(rt, n)
		requested := ID(fmt.Sprintf("c%d", rapid.IntRange(0, n-1).Draw(rt, "requested")))

		sub, err := ExtractSubgraph(cfg, []ID{requested})
		if err != nil {
			rt.Fatalf("expected no error, got: %v", err)
		}
		if _, ok := sub[requested]; !ok {
			rt.Fatalf("expected %s in subgraph", requested)
		}
		for id, v := range sub {
			for _, target := range RefTargets(v) {
				if _, ok := sub[target]; !ok {
					rt.Fatalf("%s references %s outside the subgraph", id, target)
				}
			}
		}
	})
}

func TestProperty_MergeDoesNotMutateInput(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "n")
		seed := make([][]int, n)
		for i := 1; i < n; i++ {
			seed[i] = rapid.SliceOfNDistinct(rapid.IntRange(0, i-1), 0, i, rapid.ID[int]).Draw(rt, "roots")
		}

		build := func() Configuration {
			cfg := make(Configuration, n)
			for i := 0; i < n; i++ {
				comp := map[string]any{
					"own":    i,
					"nested": map[string]any{fmt.Sprintf("k%d", i): i},
				}
				if len(seed[i]) > 0 {
					var rules []any
					for _, r := range seed[i] {
						rules = append(rules, fmt.Sprintf("c%d", r))
					}
					comp["merge"] = rules
				}
				cfg[ID(fmt.Sprintf("c%d", i))] = comp
			}
			return cfg
		}

		cfg := build()
		if _, err := MergedConfig(cfg); err != nil {
			rt.Fatalf("expected no error, got: %v", err)
		}
		if !reflect.DeepEqual(cfg, build()) {
			rt.Fatalf("input configuration was modified")
		}
	})
}

func toAnySlice(xs []string) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
