package assembly

import (
	"errors"
	"reflect"
	"testing"
)

func TestIsQualifiedRef(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{"http/server", true},
		{"my.ns/Thing-1", true},
		{"server", false},
		{"a/b/c", false},
		{"/server", false},
		{"http/", false},
		{"http /server", false},
		{"", false},
		{42, false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := IsQualifiedRef(tt.value); got != tt.want {
			t.Errorf("IsQualifiedRef(%v): expected %v, got %v", tt.value, tt.want, got)
		}
	}
}

func TestValidateCreateRefs(t *testing.T) {
	cfg := Configuration{
		"good":   map[string]any{"create-ref": "http/server"},
		"none":   map[string]any{},
		"opaque": "http/server",
	}
	if err := ValidateCreateRefs(cfg); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cfg["bad"] = map[string]any{"create-ref": "server"}
	err := ValidateCreateRefs(cfg)
	if !IsMalformedCreateRef(err) {
		t.Fatalf("Expected malformed create-ref error, got: %v", err)
	}

	var aerr *Error
	if !errors.As(err, &aerr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if aerr.Component != "bad" {
		t.Errorf("Expected component bad, got %s", aerr.Component)
	}
	if aerr.Malformed["bad"] != "server" {
		t.Errorf("Expected bad identifier server, got %v", aerr.Malformed["bad"])
	}
}

func TestValidateReferences_Missing(t *testing.T) {
	cfg := Configuration{
		"app":    map[string]any{"refs": map[string]any{"db": "postgres", "log": "logger"}},
		"worker": map[string]any{"refs": []any{"postgres", "queue"}},
		"logger": map[string]any{},
	}

	err := ValidateReferences(cfg)
	if !IsMissingReference(err) {
		t.Fatalf("Expected missing reference error, got: %v", err)
	}

	aerr := err.(*Error)
	if !reflect.DeepEqual(aerr.Missing["app"], []ID{"postgres"}) {
		t.Errorf("Expected app missing [postgres], got %v", aerr.Missing["app"])
	}
	if !reflect.DeepEqual(aerr.Missing["worker"], []ID{"postgres", "queue"}) {
		t.Errorf("Expected worker missing [postgres queue], got %v", aerr.Missing["worker"])
	}
	if !reflect.DeepEqual(aerr.MissingNames, []ID{"postgres", "queue"}) {
		t.Errorf("Expected flattened names [postgres queue], got %v", aerr.MissingNames)
	}
}

func TestValidateReferences_Malformed(t *testing.T) {
	tests := []struct {
		name string
		refs any
	}{
		{name: "scalar", refs: "db"},
		{name: "numeric target", refs: []any{"db", 3}},
		{name: "empty target", refs: map[string]any{"db": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Configuration{
				"app": map[string]any{"refs": tt.refs},
				"db":  map[string]any{},
			}
			err := ValidateReferences(cfg)
			if !errors.Is(err, ErrMalformedReference) {
				t.Fatalf("Expected malformed reference error, got: %v", err)
			}
		})
	}
}

func TestValidateReferences_OK(t *testing.T) {
	cfg := Configuration{
		"app":  map[string]any{"refs": map[string]any{"host": "host", "port": "port"}},
		"host": "localhost",
		"port": 1234,
	}
	if err := ValidateReferences(cfg); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestValidateReferences_MalformedAndMissing(t *testing.T) {
	cfg := Configuration{
		"app":    map[string]any{"refs": 42},
		"worker": map[string]any{"refs": []any{"queue"}},
	}

	err := ValidateReferences(cfg)
	if !IsMalformedReference(err) {
		t.Errorf("Expected malformed reference error, got: %v", err)
	}
	if !IsMissingReference(err) {
		t.Errorf("Expected missing reference error alongside, got: %v", err)
	}
}
