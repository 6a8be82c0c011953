package assembly

import (
	"reflect"
	"testing"
)

func TestDeepMerge(t *testing.T) {
	tests := []struct {
		name        string
		left, right any
		want        any
	}{
		{
			name:  "disjoint keys",
			left:  map[string]any{"existing": 5},
			right: map[string]any{"bar": 3},
			want:  map[string]any{"existing": 5, "bar": 3},
		},
		{
			name:  "scalar conflict is right-biased",
			left:  map[string]any{"a": 1, "b": 2},
			right: map[string]any{"a": 10},
			want:  map[string]any{"a": 10, "b": 2},
		},
		{
			name:  "nested maps merge",
			left:  map[string]any{"db": map[string]any{"host": "a", "port": 1}},
			right: map[string]any{"db": map[string]any{"port": 2, "user": "u"}},
			want:  map[string]any{"db": map[string]any{"host": "a", "port": 2, "user": "u"}},
		},
		{
			name:  "map replaced by scalar",
			left:  map[string]any{"db": map[string]any{"host": "a"}},
			right: map[string]any{"db": "dsn"},
			want:  map[string]any{"db": "dsn"},
		},
		{
			name:  "lists are replaced",
			left:  map[string]any{"xs": []any{1, 2}},
			right: map[string]any{"xs": []any{3}},
			want:  map[string]any{"xs": []any{3}},
		},
		{
			name:  "nil left",
			left:  nil,
			right: map[string]any{"a": 1},
			want:  map[string]any{"a": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeepMerge(tt.left, tt.right)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDeepMerge_DoesNotMutate(t *testing.T) {
	left := map[string]any{"db": map[string]any{"host": "a"}}
	right := map[string]any{"db": map[string]any{"host": "b"}}

	DeepMerge(left, right)

	if left["db"].(map[string]any)["host"] != "a" {
		t.Errorf("Expected left untouched, got %v", left)
	}
}

func TestResolveMerge_SelectAll(t *testing.T) {
	full := Configuration{"foo": map[string]any{"bar": 3, "baz": 4}}
	def, _ := NormalizeMergeDef(map[string]any{"from": []any{"foo"}, "select": "all"})

	got, err := ResolveMerge(map[string]any{}, "dest", def, full)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := map[string]any{"bar": 3, "baz": 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestResolveMerge_KeyedSelectRename(t *testing.T) {
	full := Configuration{"foo": map[string]any{"bar": 3, "baz": 4}}
	def, _ := NormalizeMergeDef(map[string]any{"from": "foo", "select": map[string]any{"new_bar": "bar"}})

	got, err := ResolveMerge(map[string]any{}, "dest", def, full)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := map[string]any{"new_bar": 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestResolveMerge_KeyedSelectSkipsAbsent(t *testing.T) {
	full := Configuration{"foo": map[string]any{"bar": 3}}
	def, _ := NormalizeMergeDef(map[string]any{"from": "foo", "select": []any{"bar", "missing"}})

	got, err := ResolveMerge(map[string]any{"keep": true}, "dest", def, full)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := map[string]any{"keep": true, "bar": 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestResolveMerge_NestedFromAndTo(t *testing.T) {
	full := Configuration{
		"defaults": map[string]any{"server": map[string]any{"addr": ":80", "timeout": "5s"}},
	}
	def, _ := NormalizeMergeDef(map[string]any{
		"from": []any{"defaults", "server"},
		"to":   []any{"http", "server"},
	})
	partial := map[string]any{"http": map[string]any{"server": map[string]any{"addr": ":8080"}, "tls": false}}

	got, err := ResolveMerge(partial, "app", def, full)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := map[string]any{
		"http": map[string]any{
			"server": map[string]any{"addr": ":80", "timeout": "5s"},
			"tls":    false,
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if partial["http"].(map[string]any)["server"].(map[string]any)["addr"] != ":8080" {
		t.Error("Expected partial configuration untouched")
	}
}

func TestResolveMerge_ScalarIntoNestedPath(t *testing.T) {
	full := Configuration{"port": 1234}
	def, _ := NormalizeMergeDef(map[string]any{"from": "port", "to": []any{"server", "port"}})

	got, err := ResolveMerge(map[string]any{}, "app", def, full)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := map[string]any{"server": map[string]any{"port": 1234}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestResolveMerge_NonMapSourceAtRoot(t *testing.T) {
	full := Configuration{"foo": 7}
	def, _ := NormalizeMergeDef("foo")
	partial := map[string]any{"existing": 5}

	got, err := ResolveMerge(partial, "dest", def, full)
	if err == nil {
		t.Fatal("Expected merge error")
	}
	if err.Kind != MergeErrorNonMapSource {
		t.Errorf("Expected kind %s, got %s", MergeErrorNonMapSource, err.Kind)
	}
	if err.Component != "dest" {
		t.Errorf("Expected component dest, got %s", err.Component)
	}
	if !reflect.DeepEqual(got, partial) {
		t.Errorf("Expected destination unchanged, got %v", got)
	}
}

func TestResolveMerge_NonMapSelectSource(t *testing.T) {
	full := Configuration{"foo": "text"}
	def, _ := NormalizeMergeDef(map[string]any{"from": "foo", "to": "x", "select": []any{"a"}})

	_, err := ResolveMerge(map[string]any{}, "dest", def, full)
	if err == nil || err.Kind != MergeErrorNonMapSelectSource {
		t.Fatalf("Expected %s error, got %v", MergeErrorNonMapSelectSource, err)
	}
}

func TestResolveMerge_WholeComponentDropsSourceRules(t *testing.T) {
	full := Configuration{
		"base": map[string]any{"merge": []any{"other"}, "refs": []any{"db"}, "level": "info"},
	}
	def, _ := NormalizeMergeDef("base")
	partial := map[string]any{"merge": []any{"base"}}

	got, err := ResolveMerge(partial, "app", def, full)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(got["merge"], []any{"base"}) {
		t.Errorf("Expected destination merge rules kept, got %v", got["merge"])
	}
	if !reflect.DeepEqual(got["refs"], []any{"db"}) {
		t.Errorf("Expected refs carried over, got %v", got["refs"])
	}
	if got["level"] != "info" {
		t.Errorf("Expected level info, got %v", got["level"])
	}
}
