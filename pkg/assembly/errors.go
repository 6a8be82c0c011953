package assembly

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies an assembly failure.
type ErrorKind string

const (
	// ErrorKindStructuralCycle indicates a cycle in the merge or reference graph.
	// Fatal: no partial result is produced.
	ErrorKindStructuralCycle ErrorKind = "structural-cycle"

	// ErrorKindMergeFailed aggregates merge errors of surviving components.
	ErrorKindMergeFailed ErrorKind = "merge-failed"

	// ErrorKindMissingReference aggregates references to unknown components.
	ErrorKindMissingReference ErrorKind = "missing-reference"

	// ErrorKindMalformedCreateRef indicates a create-ref that is not namespace/name.
	ErrorKindMalformedCreateRef ErrorKind = "malformed-create-ref"

	// ErrorKindMalformedReference indicates a refs declaration of the wrong shape.
	ErrorKindMalformedReference ErrorKind = "malformed-reference"
)

// GraphKind names the dependency graph an error refers to.
type GraphKind string

const (
	GraphMerge     GraphKind = "merge"
	GraphReference GraphKind = "reference"
)

// Error is a classified assembly error.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Component is the offending component, if a single one is involved.
	Component ID `json:"component,omitempty"`

	// Graph is the graph a structural cycle was found in.
	Graph GraphKind `json:"graph,omitempty"`

	// Cycle is the cycle path, first node repeated at the end.
	Cycle []ID `json:"cycle,omitempty"`

	// MergeErrors are the merge errors of surviving components, sorted by kind then component.
	MergeErrors []*MergeError `json:"merge_errors,omitempty"`

	// Missing maps each offending component to its missing reference targets.
	Missing map[ID][]ID `json:"missing,omitempty"`

	// MissingNames is the flattened, sorted list of all missing targets.
	MissingNames []ID `json:"missing_names,omitempty"`

	// Malformed maps each offending component to the rejected value.
	Malformed map[ID]any `json:"malformed,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Component != "" {
		msg += fmt.Sprintf(" (component=%s)", e.Component)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is. Errors match on Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithComponent adds component context to an error.
func (e *Error) WithComponent(id ID) *Error {
	e.Component = id
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// MergeErrorsByKind groups the aggregated merge errors by kind and component.
func (e *Error) MergeErrorsByKind() map[MergeErrorKind]map[ID][]*MergeError {
	grouped := make(map[MergeErrorKind]map[ID][]*MergeError)
	for _, me := range e.MergeErrors {
		byComponent, ok := grouped[me.Kind]
		if !ok {
			byComponent = make(map[ID][]*MergeError)
			grouped[me.Kind] = byComponent
		}
		byComponent[me.Component] = append(byComponent[me.Component], me)
	}
	return grouped
}

// Sentinels for errors.Is.
var (
	ErrStructuralCycle    = &Error{Kind: ErrorKindStructuralCycle}
	ErrMergeFailed        = &Error{Kind: ErrorKindMergeFailed}
	ErrMissingReference   = &Error{Kind: ErrorKindMissingReference}
	ErrMalformedCreateRef = &Error{Kind: ErrorKindMalformedCreateRef}
	ErrMalformedReference = &Error{Kind: ErrorKindMalformedReference}
)

// NewCycleError reports a cycle found in graph.
func NewCycleError(graph GraphKind, cycle []ID) *Error {
	return &Error{
		Kind:    ErrorKindStructuralCycle,
		Message: fmt.Sprintf("circular dependency in %s graph: %s", graph, formatCycle(cycle)),
		Graph:   graph,
		Cycle:   cycle,
	}
}

// NewMergeFailedError aggregates merge errors. The slice is sorted in place.
func NewMergeFailedError(errs []*MergeError) *Error {
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Kind != errs[j].Kind {
			return errs[i].Kind < errs[j].Kind
		}
		return errs[i].Component < errs[j].Component
	})

	counts := make(map[MergeErrorKind]int)
	for _, me := range errs {
		counts[me.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for kind, n := range counts {
		kinds = append(kinds, fmt.Sprintf("%s=%d", kind, n))
	}
	sort.Strings(kinds)

	return &Error{
		Kind:        ErrorKindMergeFailed,
		Message:     fmt.Sprintf("%d merge error(s): %s", len(errs), strings.Join(kinds, ", ")),
		MergeErrors: errs,
	}
}

// NewMissingReferenceError reports missing reference targets per component.
func NewMissingReferenceError(missing map[ID][]ID) *Error {
	seen := make(map[ID]bool)
	var names []ID
	for _, targets := range missing {
		sortIDs(targets)
		for _, t := range targets {
			if !seen[t] {
				seen[t] = true
				names = append(names, t)
			}
		}
	}
	sortIDs(names)

	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}

	return &Error{
		Kind:         ErrorKindMissingReference,
		Message:      fmt.Sprintf("missing references: %s", strings.Join(parts, ", ")),
		Missing:      missing,
		MissingNames: names,
	}
}

// NewMalformedCreateRefError reports create-ref values that are not namespace/name.
func NewMalformedCreateRefError(bad map[ID]any) *Error {
	return &Error{
		Kind:      ErrorKindMalformedCreateRef,
		Message:   fmt.Sprintf("create-ref must be a qualified namespace/name identifier: %s", describeMalformed(bad)),
		Malformed: bad,
	}
}

// NewMalformedReferenceError reports refs declarations that are neither a list nor a map of IDs.
func NewMalformedReferenceError(bad map[ID]any) *Error {
	return &Error{
		Kind:      ErrorKindMalformedReference,
		Message:   fmt.Sprintf("refs must be a list of IDs or a map of alias to ID: %s", describeMalformed(bad)),
		Malformed: bad,
	}
}

// IsStructuralCycle returns true if err is a structural cycle error.
func IsStructuralCycle(err error) bool {
	return errors.Is(err, ErrStructuralCycle)
}

// IsMergeFailed returns true if err aggregates merge errors.
func IsMergeFailed(err error) bool {
	return errors.Is(err, ErrMergeFailed)
}

// IsMissingReference returns true if err reports missing references.
func IsMissingReference(err error) bool {
	return errors.Is(err, ErrMissingReference)
}

// IsMalformedCreateRef returns true if err reports malformed create-refs.
func IsMalformedCreateRef(err error) bool {
	return errors.Is(err, ErrMalformedCreateRef)
}

// IsMalformedReference returns true if err reports malformed refs declarations.
func IsMalformedReference(err error) bool {
	return errors.Is(err, ErrMalformedReference)
}

// Problems flattens err into the classified errors it carries. Validation
// joins every problem it finds with errors.Join; a lone problem is returned
// unjoined.
func Problems(err error) []*Error {
	var out []*Error
	var walk func(error)
	walk = func(e error) {
		switch x := e.(type) {
		case nil:
		case *Error:
			out = append(out, x)
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner)
			}
		default:
			var aerr *Error
			if errors.As(e, &aerr) {
				out = append(out, aerr)
			}
		}
	}
	walk(err)
	return out
}

// ProblemOf returns the problem of the given kind carried by err.
func ProblemOf(err error, kind ErrorKind) (*Error, bool) {
	for _, p := range Problems(err) {
		if p.Kind == kind {
			return p, true
		}
	}
	return nil, false
}

func joinProblems(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return errors.Join(errs...)
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []ID) string {
	parts := make([]string, len(cycle))
	for i, id := range cycle {
		parts[i] = string(id)
	}
	return strings.Join(parts, " -> ")
}

func describeMalformed(bad map[ID]any) string {
	ids := make([]ID, 0, len(bad))
	for id := range bad {
		ids = append(ids, id)
	}
	sortIDs(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s=%v", id, bad[id])
	}
	return strings.Join(parts, ", ")
}
