package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/openfroyo/assembler/pkg/assembly"
)

// SchemaRegistry holds CUE schemas keyed by constructor identifier
// (namespace/name). A component whose create-ref has a schema must unify
// with it after assembly.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates an empty schema registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
}

// RegisterSchema registers a CUE schema for a constructor identifier.
func (sr *SchemaRegistry) RegisterSchema(createRef, schema string) error {
	if !assembly.IsQualifiedRef(createRef) {
		return fmt.Errorf("schema key %q is not a namespace/name identifier", createRef)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(createRef))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", createRef, err)
	}

	sr.schemas[createRef] = val
	return nil
}

// RegisterFile registers every top-level field of a CUE file as the schema
// of the constructor named by the field label, e.g.
//
//	"http/server": close({addr: string, timeout?: string})
func (sr *SchemaRegistry) RegisterFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema file %s: %w", path, err)
	}

	iter, err := val.Fields(cue.Definitions(false), cue.Hidden(false))
	if err != nil {
		return fmt.Errorf("failed to iterate schema file %s: %w", path, err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		if !assembly.IsQualifiedRef(name) {
			return fmt.Errorf("schema key %q in %s is not a namespace/name identifier", name, path)
		}
		sr.schemas[name] = iter.Value()
	}
	return nil
}

// GetSchema retrieves a schema by constructor identifier.
func (sr *SchemaRegistry) GetSchema(createRef string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[createRef]
	return val, ok
}

// ValidateAgainstSchema validates data against the schema of createRef.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, createRef string, data interface{}) error {
	schema, ok := sr.GetSchema(createRef)
	if !ok {
		return fmt.Errorf("schema %s not found", createRef)
	}

	sr.mu.Lock()
	dataVal := sr.ctx.Encode(data)
	sr.mu.Unlock()
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateAssembly checks every constructed component that has a schema.
// Components without a create-ref or without a schema are not checked.
func (sr *SchemaRegistry) ValidateAssembly(ctx context.Context, asm *assembly.Assembly) error {
	ids := make([]assembly.ID, 0, len(asm.CreateRefs))
	for id := range asm.CreateRefs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var problems SourceErrors
	for _, id := range ids {
		ref := asm.CreateRefs[id]
		if _, ok := sr.GetSchema(ref); !ok {
			continue
		}
		if err := sr.ValidateAgainstSchema(ctx, ref, asm.Config[id]); err != nil {
			problems = append(problems, SourceError{
				Message: fmt.Sprintf("component %s (%s): %v", id, ref, err),
			})
		}
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}

// ListSchemas returns all registered constructor identifiers, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
