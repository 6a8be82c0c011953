package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/openfroyo/assembler/pkg/assembly"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path   string
		want   Format
		wantOK bool
	}{
		{"a.yaml", FormatYAML, true},
		{"a.YML", FormatYAML, true},
		{"a.json", FormatYAML, true},
		{"dir/a.cue", FormatCUE, true},
		{"a.star", FormatStarlark, true},
		{"a.toml", "", false},
		{"README", "", false},
	}

	for _, tt := range tests {
		got, ok := FormatOf(tt.path)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("FormatOf(%q): expected (%q, %v), got (%q, %v)", tt.path, tt.want, tt.wantOK, got, ok)
		}
	}
}

func TestParseYAML(t *testing.T) {
	content := `
app:
  create-ref: http/server
  refs:
    store: db
  merge:
    - base
    - from: [defaults, server]
      to: server
      select: {listen: addr}
base:
  timeout: 5s
port: 8080
---
db:
  create-ref: sql/pool
`

	cfg, err := ParseYAML("app.yaml", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []assembly.ID{"app", "base", "db", "port"}
	if got := cfg.IDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected components %v, got %v", want, got)
	}
	if cfg["port"] != 8080 {
		t.Errorf("expected port 8080, got %v", cfg["port"])
	}

	app := cfg["app"].(map[string]interface{})
	refs := assembly.RefMapOf(app)
	if !reflect.DeepEqual(refs, assembly.RefMap{"store": "db"}) {
		t.Errorf("expected refs {store: db}, got %v", refs)
	}
	if roots := assembly.MergeRoots(app); !reflect.DeepEqual(roots, []assembly.ID{"base", "defaults"}) {
		t.Errorf("expected merge roots [base defaults], got %v", roots)
	}
}

func TestParseYAML_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not a mapping", content: "- a\n- b\n"},
		{name: "bad syntax", content: "app: [unclosed\n"},
		{name: "duplicate across documents", content: "app: 1\n---\napp: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseYAML("bad.yaml", []byte(tt.content)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseYAML_JSON(t *testing.T) {
	cfg, err := ParseYAML("app.json", []byte(`{"app": {"refs": ["db"], "replicas": 3}, "db": {}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg["app"].(map[string]interface{})["replicas"] != 3 {
		t.Errorf("expected replicas 3, got %v", cfg["app"])
	}
}

func TestLoader_LoadCombinesFormats(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "base.yaml", "defaults:\n  timeout: 5s\n")
	cuePath := writeFile(t, dir, "db.cue", `db: {"create-ref": "sql/pool", max_conns: 10}`)
	starPath := writeFile(t, dir, "api.star", `api = {"create-ref": "http/server", "refs": ["db"], "merge": ["defaults"]}`)

	loader := NewLoader(testLogger(), 0)
	cfg, err := loader.Load(context.Background(), yamlPath, cuePath, starPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []assembly.ID{"api", "db", "defaults"}
	if got := cfg.IDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	asm, err := assembly.Assemble(cfg, "api")
	if err != nil {
		t.Fatalf("unexpected assembly error: %v", err)
	}
	if asm.Config["api"].(map[string]interface{})["timeout"] != "5s" {
		t.Errorf("expected merged timeout, got %v", asm.Config["api"])
	}
}

func TestLoader_FormatParity(t *testing.T) {
	dir := t.TempDir()
	sources := map[string]string{
		"parity.yaml": "svc:\n  create-ref: http/server\n  port: 80\n  refs: [db]\n  tags: [a, b]\n  tls: {enabled: true}\n",
		"parity.json": `{"svc": {"create-ref": "http/server", "port": 80, "refs": ["db"], "tags": ["a", "b"], "tls": {"enabled": true}}}`,
		"parity.cue":  `svc: {"create-ref": "http/server", port: 80, refs: ["db"], tags: ["a", "b"], tls: enabled: true}`,
		"parity.star": `svc = {"create-ref": "http/server", "port": 80, "refs": ["db"], "tags": ["a", "b"], "tls": {"enabled": True}}`,
	}

	loader := NewLoader(testLogger(), 0)
	var reference assembly.Configuration
	for _, name := range []string{"parity.yaml", "parity.json", "parity.cue", "parity.star"} {
		path := writeFile(t, dir, name, sources[name])

		cfg, err := loader.LoadFile(context.Background(), path)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if reference == nil {
			reference = cfg
			continue
		}
		if !reflect.DeepEqual(cfg, reference) {
			t.Errorf("%s: expected %v, got %v", name, reference, cfg)
		}
	}
}

func TestLoader_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "b: {}\n")
	writeFile(t, dir, "nested/a.cue", "a: {}\n")
	writeFile(t, dir, "notes.txt", "ignored")

	cfg, err := NewLoader(testLogger(), 0).Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.IDs(); !reflect.DeepEqual(got, []assembly.ID{"a", "b"}) {
		t.Errorf("expected [a b], got %v", got)
	}
}

func TestLoader_DuplicateComponent(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "one.yaml", "app: {}\n")
	second := writeFile(t, dir, "two.cue", "app: {}\n")

	_, err := NewLoader(testLogger(), 0).Load(context.Background(), first, second)

	var dup *DuplicateComponentError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateComponentError, got %v", err)
	}
	if dup.ID != "app" || dup.First != first || dup.Again != second {
		t.Errorf("unexpected duplicate details: %+v", dup)
	}
}

func TestLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	unsupported := writeFile(t, dir, "app.toml", "app = 1\n")

	loader := NewLoader(testLogger(), 0)
	ctx := context.Background()

	if _, err := loader.Load(ctx); err == nil {
		t.Error("expected error without sources")
	}
	if _, err := loader.Load(ctx, filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := loader.Load(ctx, unsupported); err == nil {
		t.Error("expected error for unsupported format")
	}
}
