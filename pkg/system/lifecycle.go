package system

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/assembler/pkg/assembly"
)

// Lifecycle is implemented by components that hold resources between
// Start and Stop.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Wired is a constructed component together with the reference map it was
// built from.
type Wired struct {
	// Object is the constructed component, or the value itself for opaque
	// entries.
	Object any

	// Refs maps local aliases to the IDs of the components injected under them.
	Refs assembly.RefMap
}

// DeclareDependencies pairs a constructed object with its reference map.
func DeclareDependencies(object any, refs assembly.RefMap) Wired {
	if refs == nil {
		refs = assembly.RefMap{}
	}
	return Wired{Object: object, Refs: refs}
}

// Dependencies returns the IDs the object was wired to, sorted.
func (w Wired) Dependencies() []assembly.ID {
	return w.Refs.Targets()
}

// ComponentError reports a failed operation on one component.
type ComponentError struct {
	ID        assembly.ID
	CreateRef string
	Op        string
	Err       error
}

// Error implements the error interface.
func (e *ComponentError) Error() string {
	if e.CreateRef != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.ID, e.CreateRef, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ComponentError) Unwrap() error {
	return e.Err
}

// UnknownConstructorError lists create-refs with no registered constructor.
type UnknownConstructorError struct {
	// Refs maps each unknown create-ref to the components using it.
	Refs map[string][]assembly.ID
}

// Error implements the error interface.
func (e *UnknownConstructorError) Error() string {
	refs := make([]string, 0, len(e.Refs))
	for ref := range e.Refs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	parts := make([]string, len(refs))
	for i, ref := range refs {
		ids := make([]string, len(e.Refs[ref]))
		for j, id := range e.Refs[ref] {
			ids[j] = string(id)
		}
		parts[i] = fmt.Sprintf("%s (used by %s)", ref, strings.Join(ids, ", "))
	}
	return "no constructor registered for " + strings.Join(parts, "; ")
}
