package assembly

import (
	"regexp"
)

// qualifiedRef matches namespace/name with non-empty parts and no whitespace.
var qualifiedRef = regexp.MustCompile(`^[^\s/]+/[^\s/]+$`)

// IsQualifiedRef reports whether v is a namespace/name constructor identifier.
func IsQualifiedRef(v any) bool {
	s, ok := v.(string)
	return ok && qualifiedRef.MatchString(s)
}

// ValidateCreateRefs rejects every create-ref that is not a qualified
// namespace/name identifier.
func ValidateCreateRefs(cfg Configuration) error {
	bad := make(map[ID]any)
	for id, v := range cfg {
		comp, ok := asMap(v)
		if !ok {
			continue
		}
		ref, present := comp[KeyCreateRef]
		if !present {
			continue
		}
		if !IsQualifiedRef(ref) {
			bad[id] = ref
		}
	}
	if len(bad) > 0 {
		err := NewMalformedCreateRefError(bad)
		if len(bad) == 1 {
			for id := range bad {
				err.WithComponent(id)
			}
		}
		return err
	}
	return nil
}

// ValidateReferences checks that every declared reference target of every
// component spec is a top-level key of cfg. All problems are reported in a
// single error: malformed declarations are joined with the missing targets
// of every well-formed declaration.
func ValidateReferences(cfg Configuration) error {
	malformed := make(map[ID]any)
	missing := make(map[ID][]ID)

	for id, v := range cfg {
		comp, ok := asMap(v)
		if !ok {
			continue
		}
		refs, ok := parseRefs(comp[KeyRefs])
		if !ok {
			malformed[id] = comp[KeyRefs]
			continue
		}
		for _, target := range refs.Targets() {
			if _, exists := cfg[target]; !exists {
				missing[id] = append(missing[id], target)
			}
		}
	}

	var problems []error
	if len(malformed) > 0 {
		problems = append(problems, NewMalformedReferenceError(malformed))
	}
	if len(missing) > 0 {
		problems = append(problems, NewMissingReferenceError(missing))
	}
	return joinProblems(problems)
}
