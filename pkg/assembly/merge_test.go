package assembly

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestApplyMerges_Chain(t *testing.T) {
	cfg := Configuration{
		"base":   map[string]any{"level": "info", "format": "json"},
		"middle": map[string]any{"merge": []any{"base"}, "level": "debug"},
		"top":    map[string]any{"merge": []any{"middle"}, "name": "top"},
	}

	out, ledger, err := applyMerges(cfg, testLogger())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(ledger) != 0 {
		t.Errorf("Expected empty ledger, got %v", ledger)
	}

	top := out["top"].(map[string]any)
	if top["format"] != "json" {
		t.Errorf("Expected format inherited through middle, got %v", top["format"])
	}
	// base is merged into middle on top of its own keys, so base wins
	if top["level"] != "info" {
		t.Errorf("Expected level info, got %v", top["level"])
	}
	if top["name"] != "top" {
		t.Errorf("Expected name top, got %v", top["name"])
	}
	if !reflect.DeepEqual(top["merge"], []any{"middle"}) {
		t.Errorf("Expected top to keep its own merge rules, got %v", top["merge"])
	}
}

func TestApplyMerges_RulesApplyInOrder(t *testing.T) {
	cfg := Configuration{
		"a":   map[string]any{"v": "a", "only_a": true},
		"b":   map[string]any{"v": "b"},
		"app": map[string]any{"merge": []any{"a", "b"}},
	}

	out, _, err := applyMerges(cfg, testLogger())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	app := out["app"].(map[string]any)
	if app["v"] != "b" {
		t.Errorf("Expected later rule to win, got %v", app["v"])
	}
	if app["only_a"] != true {
		t.Errorf("Expected keys of first rule kept, got %v", app)
	}
}

func TestApplyMerges_Cycle(t *testing.T) {
	cfg := Configuration{
		"a": map[string]any{"merge": []any{"b"}},
		"b": map[string]any{"merge": []any{"a"}},
	}

	_, _, err := applyMerges(cfg, testLogger())
	if !IsStructuralCycle(err) {
		t.Fatalf("Expected structural cycle error, got: %v", err)
	}
	if err.(*Error).Graph != GraphMerge {
		t.Errorf("Expected merge graph, got %s", err.(*Error).Graph)
	}
}

func TestApplyMerges_ErrorsRecordedNotThrown(t *testing.T) {
	cfg := Configuration{
		"scalar": 3,
		"broken": map[string]any{"merge": []any{"scalar"}, "keep": 1},
		"fine":   map[string]any{"merge": []any{map[string]any{"from": "scalar", "to": "n"}}},
	}

	out, ledger, err := applyMerges(cfg, testLogger())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	errs := ledger["broken"]
	if len(errs) != 1 || errs[0].Kind != MergeErrorNonMapSource {
		t.Fatalf("Expected one non-map-source error for broken, got %v", errs)
	}
	if len(ledger["fine"]) != 0 {
		t.Errorf("Expected no errors for fine, got %v", ledger["fine"])
	}
	if out["broken"].(map[string]any)["keep"] != 1 {
		t.Errorf("Expected broken to keep its keys, got %v", out["broken"])
	}
	if out["fine"].(map[string]any)["n"] != 3 {
		t.Errorf("Expected fine.n = 3, got %v", out["fine"])
	}
}

func TestApplyMerges_ErrorPropagatesAcrossHops(t *testing.T) {
	cfg := Configuration{
		"scalar": "x",
		"a":      map[string]any{"merge": []any{"scalar"}},
		"b":      map[string]any{"merge": []any{"a"}},
		"c":      map[string]any{"merge": []any{map[string]any{"from": "b", "select": []any{"k"}}}},
	}

	_, ledger, err := applyMerges(cfg, testLogger())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for _, id := range []ID{"a", "b", "c"} {
		if len(ledger[id]) != 1 {
			t.Fatalf("Expected one inherited error on %s, got %v", id, ledger[id])
		}
		if ledger[id][0].Component != "a" {
			t.Errorf("Expected error on %s to originate at a, got %s", id, ledger[id][0].Component)
		}
	}
}

func TestApplyMerges_InvalidEntry(t *testing.T) {
	cfg := Configuration{
		"app": map[string]any{"merge": []any{42, map[string]any{"to": "x"}}},
	}

	_, ledger, err := applyMerges(cfg, testLogger())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(ledger["app"]) != 2 {
		t.Fatalf("Expected 2 errors, got %v", ledger["app"])
	}
	for _, e := range ledger["app"] {
		if e.Kind != MergeErrorInvalidDef {
			t.Errorf("Expected %s, got %s", MergeErrorInvalidDef, e.Kind)
		}
	}
}

func TestApplyMerges_SingleEntryNotList(t *testing.T) {
	cfg := Configuration{
		"base": map[string]any{"x": 1},
		"app":  map[string]any{"merge": "base"},
	}

	out, _, err := applyMerges(cfg, testLogger())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out["app"].(map[string]any)["x"] != 1 {
		t.Errorf("Expected x merged from base, got %v", out["app"])
	}
}

func TestApplyMerges_DoesNotMutateInput(t *testing.T) {
	base := map[string]any{"nested": map[string]any{"a": 1}}
	app := map[string]any{"merge": []any{"base"}, "nested": map[string]any{"b": 2}}
	cfg := Configuration{"base": base, "app": app}

	if _, _, err := applyMerges(cfg, testLogger()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !reflect.DeepEqual(app, map[string]any{"merge": []any{"base"}, "nested": map[string]any{"b": 2}}) {
		t.Errorf("Expected input component untouched, got %v", app)
	}
	if !reflect.DeepEqual(base, map[string]any{"nested": map[string]any{"a": 1}}) {
		t.Errorf("Expected source component untouched, got %v", base)
	}
	if cfg["app"].(map[string]any)["nested"].(map[string]any)["a"] != nil {
		t.Error("Expected configuration map untouched")
	}
}

func TestApplyMerges_MissingRoot(t *testing.T) {
	tests := []struct {
		name string
		rule any
	}{
		{name: "into nested path", rule: map[string]any{"from": []any{"nope"}, "to": []any{"db"}}},
		{name: "into root", rule: "nope"},
		{name: "keyed select", rule: map[string]any{"from": "nope", "select": []any{"host"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Configuration{
				"app": map[string]any{
					"db":    map[string]any{"host": "x"},
					"merge": []any{tt.rule},
				},
			}

			out, ledger, err := applyMerges(cfg, testLogger())
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			errs := ledger["app"]
			if len(errs) != 1 || errs[0].Kind != MergeErrorMissingRoot {
				t.Fatalf("Expected one missing-merge-root error for app, got %v", errs)
			}
			db := out["app"].(map[string]any)["db"]
			if !reflect.DeepEqual(db, map[string]any{"host": "x"}) {
				t.Errorf("Expected app.db unchanged, got %v", db)
			}
		})
	}
}
