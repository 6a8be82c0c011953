package assembly

import (
	"reflect"
	"testing"
)

func TestNormalizeMergeDef(t *testing.T) {
	tests := []struct {
		name   string
		raw    any
		want   MergeDef
		wantOK bool
	}{
		{
			name:   "bare id",
			raw:    "foo",
			want:   MergeDef{To: Path{}, From: Path{"foo"}, Select: SelectAll},
			wantOK: true,
		},
		{
			name:   "typed id",
			raw:    ID("foo"),
			want:   MergeDef{To: Path{}, From: Path{"foo"}, Select: SelectAll},
			wantOK: true,
		},
		{
			name:   "structured defaults",
			raw:    map[string]any{"from": []any{"foo", "bar"}},
			want:   MergeDef{To: Path{}, From: Path{"foo", "bar"}, Select: SelectAll},
			wantOK: true,
		},
		{
			name:   "single key paths",
			raw:    map[string]any{"from": "foo", "to": "server"},
			want:   MergeDef{To: Path{"server"}, From: Path{"foo"}, Select: SelectAll},
			wantOK: true,
		},
		{
			name:   "explicit all",
			raw:    map[string]any{"from": []any{"foo"}, "select": "all"},
			want:   MergeDef{To: Path{}, From: Path{"foo"}, Select: SelectAll},
			wantOK: true,
		},
		{
			name: "list select is identity",
			raw:  map[string]any{"from": []any{"foo"}, "select": []any{"bar", "baz"}},
			want: MergeDef{
				To:     Path{},
				From:   Path{"foo"},
				Select: Selection{Keys: map[string]string{"bar": "bar", "baz": "baz"}},
			},
			wantOK: true,
		},
		{
			name: "map select renames",
			raw:  map[string]any{"from": []any{"foo"}, "to": []any{"a", "b"}, "select": map[string]any{"new_bar": "bar"}},
			want: MergeDef{
				To:     Path{"a", "b"},
				From:   Path{"foo"},
				Select: Selection{Keys: map[string]string{"new_bar": "bar"}},
			},
			wantOK: true,
		},
		{name: "missing from", raw: map[string]any{"to": []any{"x"}}},
		{name: "empty from", raw: map[string]any{"from": []any{}}},
		{name: "empty bare id", raw: ""},
		{name: "empty path key", raw: map[string]any{"from": []any{"foo", ""}}},
		{name: "non-string path key", raw: map[string]any{"from": []any{"foo", 3}}},
		{name: "unknown select keyword", raw: map[string]any{"from": "foo", "select": "some"}},
		{name: "non-string select target", raw: map[string]any{"from": "foo", "select": map[string]any{"a": 1}}},
		{name: "number", raw: 12},
		{name: "nil", raw: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeMergeDef(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("Expected ok=%v, got %v (def %v)", tt.wantOK, ok, got)
			}
			if !tt.wantOK {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNormalizeMergeDef_Idempotent(t *testing.T) {
	raws := []any{
		"foo",
		map[string]any{"from": []any{"foo", "bar"}, "to": "x"},
		map[string]any{"from": "foo", "select": map[string]any{"a": "b"}},
		map[string]any{"from": "foo", "select": []any{"a"}},
	}

	for _, raw := range raws {
		once, ok := NormalizeMergeDef(raw)
		if !ok {
			t.Fatalf("Expected %v to normalize", raw)
		}

		twice, ok := NormalizeMergeDef(once)
		if !ok || !reflect.DeepEqual(once, twice) {
			t.Errorf("Expected normalizing %v to be stable, got %v then %v", raw, once, twice)
		}

		fromRaw, ok := NormalizeMergeDef(once.Raw())
		if !ok || !reflect.DeepEqual(once, fromRaw) {
			t.Errorf("Expected structured form of %v to normalize identically, got %v", once, fromRaw)
		}
	}
}

func TestNormalizeMergeDef_BareEqualsExpanded(t *testing.T) {
	bare, ok := NormalizeMergeDef("foo")
	if !ok {
		t.Fatal("Expected bare id to normalize")
	}
	expanded, ok := NormalizeMergeDef(map[string]any{"to": []any{}, "from": []any{"foo"}, "select": "all"})
	if !ok {
		t.Fatal("Expected expanded rule to normalize")
	}
	if !reflect.DeepEqual(bare, expanded) {
		t.Errorf("Expected %v to equal %v", bare, expanded)
	}
}

func TestNormalizeMergeDef_DoesNotAlias(t *testing.T) {
	from := Path{"foo", "bar"}
	def, ok := NormalizeMergeDef(MergeDef{From: from, Select: SelectAll})
	if !ok {
		t.Fatal("Expected def to normalize")
	}
	def.From[0] = "changed"
	if from[0] != "foo" {
		t.Errorf("Expected input path untouched, got %v", from)
	}
}
