package system

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/openfroyo/assembler/pkg/assembly"
)

// Constructor builds a component from its resolved configuration. Each
// reference alias of the component is present in config with the
// constructed dependency as its value.
type Constructor func(ctx context.Context, config map[string]any) (any, error)

// Registry maps create-ref identifiers to constructors.
type Registry struct {
	// mu protects the registry state.
	mu sync.RWMutex

	// constructors maps a create-ref to its constructor.
	constructors map[string]Constructor

	// allowedNamespaces restricts registrations when non-empty.
	allowedNamespaces map[string]bool
}

// NewRegistry creates an empty constructor registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors:      make(map[string]Constructor),
		allowedNamespaces: make(map[string]bool),
	}
}

// SetAllowedNamespaces restricts which create-ref namespaces may be
// registered. An empty list lifts the restriction.
func (r *Registry) SetAllowedNamespaces(namespaces []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.allowedNamespaces = make(map[string]bool)
	for _, ns := range namespaces {
		r.allowedNamespaces[ns] = true
	}
}

// Register adds a constructor for createRef, which must be a qualified
// namespace/name identifier not already registered.
func (r *Registry) Register(createRef string, ctor Constructor) error {
	if !assembly.IsQualifiedRef(createRef) {
		return fmt.Errorf("create-ref %q is not of the form namespace/name", createRef)
	}
	if ctor == nil {
		return fmt.Errorf("constructor for %s is nil", createRef)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.allowedNamespaces) > 0 {
		ns := createRef[:strings.Index(createRef, "/")]
		if !r.allowedNamespaces[ns] {
			return fmt.Errorf("namespace %s is not allowed in this registry", ns)
		}
	}

	if _, exists := r.constructors[createRef]; exists {
		return fmt.Errorf("constructor %s already registered", createRef)
	}

	r.constructors[createRef] = ctor
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(createRef string, ctor Constructor) {
	if err := r.Register(createRef, ctor); err != nil {
		panic(err)
	}
}

// Lookup returns the constructor registered for createRef.
func (r *Registry) Lookup(createRef string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctor, ok := r.constructors[createRef]
	return ctor, ok
}

// List returns the registered create-refs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.constructors))
	for ref := range r.constructors {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Missing returns, for each create-ref used by asm without a registered
// constructor, the components that use it.
func (r *Registry) Missing(asm *assembly.Assembly) map[string][]assembly.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	missing := make(map[string][]assembly.ID)
	for _, id := range asm.Order {
		ref, ok := asm.CreateRefs[id]
		if !ok {
			continue
		}
		if _, registered := r.constructors[ref]; !registered {
			missing[ref] = append(missing[ref], id)
		}
	}
	return missing
}
