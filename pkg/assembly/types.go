package assembly

import (
	"fmt"
	"sort"
	"strings"
)

// ID is the opaque identifier of a top-level configuration entry.
type ID string

// Configuration maps component identifiers to their values. A value is either
// a component spec (map[string]any) or an opaque value that only serves as a
// merge or reference source.
type Configuration map[ID]any

// Reserved keys of a component spec.
const (
	// KeyCreateRef names the constructor the runtime should invoke.
	KeyCreateRef = "create-ref"

	// KeyRefs holds the reference declaration (list or alias map).
	KeyRefs = "refs"

	// KeyMerge holds the ordered list of merge rules.
	KeyMerge = "merge"
)

// reservedKeys are stripped from a component before it is handed to the runtime.
var reservedKeys = []string{KeyCreateRef, KeyRefs, KeyMerge}

// Clone returns a shallow copy of the configuration.
func (c Configuration) Clone() Configuration {
	out := make(Configuration, len(c))
	for id, v := range c {
		out[id] = v
	}
	return out
}

// IDs returns the top-level identifiers in sorted order.
func (c Configuration) IDs() []ID {
	ids := make([]ID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Path is an ordered sequence of keys. An empty path denotes the component root.
type Path []string

// String renders the path as dot-separated keys.
func (p Path) String() string {
	if len(p) == 0 {
		return "<root>"
	}
	return strings.Join(p, ".")
}

// Selection describes which keys of a merge source are taken.
// When All is set Keys is ignored; otherwise Keys maps local key to source key.
type Selection struct {
	All  bool
	Keys map[string]string
}

// SelectAll selects the whole source value.
var SelectAll = Selection{All: true}

// MergeDef is a normalized merge rule.
type MergeDef struct {
	// To is the destination path inside the owning component.
	To Path `json:"to" validate:"dive,required"`

	// From is the source path; its first element is the root component ID.
	From Path `json:"from" validate:"min=1,dive,required"`

	// Select picks the source keys to merge.
	Select Selection `json:"select"`
}

// Root returns the component the rule reads from.
func (d MergeDef) Root() ID {
	if len(d.From) == 0 {
		return ""
	}
	return ID(d.From[0])
}

// Raw renders the rule in its structured configuration form.
func (d MergeDef) Raw() map[string]any {
	to := make([]any, len(d.To))
	for i, k := range d.To {
		to[i] = k
	}
	from := make([]any, len(d.From))
	for i, k := range d.From {
		from[i] = k
	}
	var sel any = selectAllKeyword
	if !d.Select.All {
		keys := make(map[string]any, len(d.Select.Keys))
		for local, source := range d.Select.Keys {
			keys[local] = source
		}
		sel = keys
	}
	return map[string]any{"to": to, "from": from, "select": sel}
}

// String implements fmt.Stringer.
func (d MergeDef) String() string {
	sel := "all"
	if !d.Select.All {
		pairs := make([]string, 0, len(d.Select.Keys))
		for local, source := range d.Select.Keys {
			pairs = append(pairs, local+"<-"+source)
		}
		sort.Strings(pairs)
		sel = "{" + strings.Join(pairs, ",") + "}"
	}
	return fmt.Sprintf("{to:%s from:%s select:%s}", d.To, d.From, sel)
}

// MergeErrorKind tags a merge problem recorded against a component.
type MergeErrorKind string

const (
	// MergeErrorNonMapSource means a whole-component merge read a non-map value.
	MergeErrorNonMapSource MergeErrorKind = "non-map-source"

	// MergeErrorNonMapSelectSource means a keyed select read a non-map value.
	MergeErrorNonMapSelectSource MergeErrorKind = "non-map-select-source"

	// MergeErrorMissingRoot means the first element of from names no
	// top-level component.
	MergeErrorMissingRoot MergeErrorKind = "missing-merge-root"

	// MergeErrorInvalidDef means a merge entry could not be normalized.
	MergeErrorInvalidDef MergeErrorKind = "invalid-merge-def"
)

// MergeError records a merge rule that could not be applied.
type MergeError struct {
	Kind      MergeErrorKind `json:"kind"`
	Component ID             `json:"component"`
	Def       MergeDef       `json:"def"`

	// Raw holds the original entry for invalid-merge-def errors.
	Raw any `json:"raw,omitempty"`
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	if e.Kind == MergeErrorInvalidDef {
		return fmt.Sprintf("%s: component %s has malformed merge entry %v", e.Kind, e.Component, e.Raw)
	}
	return fmt.Sprintf("%s: component %s cannot merge %s", e.Kind, e.Component, e.Def)
}

// RefMap maps local aliases to global component IDs.
type RefMap map[string]ID

// Targets returns the distinct referenced IDs in sorted order.
func (r RefMap) Targets() []ID {
	seen := make(map[ID]bool, len(r))
	out := make([]ID, 0, len(r))
	for _, id := range r {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

// Assembly is the result handed to the dependency-injection runtime.
type Assembly struct {
	// Config holds every surviving component. Component specs have their
	// reserved keys removed; opaque values pass through unchanged.
	Config Configuration `json:"config" yaml:"config"`

	// Refs holds the reference map of every wired (map-like) component.
	Refs map[ID]RefMap `json:"refs" yaml:"refs"`

	// CreateRefs holds the constructor identifier of components that declare one.
	CreateRefs map[ID]string `json:"create_refs,omitempty" yaml:"create_refs,omitempty"`

	// Order lists every component with its references before it.
	Order []ID `json:"order" yaml:"order"`
}

// Wired reports whether id is a component the runtime should construct.
func (a *Assembly) Wired(id ID) bool {
	_, ok := a.Refs[id]
	return ok
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Graph rebuilds the reference graph of the assembly from Refs.
func (a *Assembly) Graph() *Graph {
	g := NewGraph(GraphReference)
	for id := range a.Config {
		g.AddNode(id)
	}
	for id, refs := range a.Refs {
		for _, target := range refs.Targets() {
			g.AddEdge(id, target)
		}
	}
	return g
}
