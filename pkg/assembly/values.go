package assembly

// asMap returns v as a component-style map when it is map-like.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Configuration:
		out := make(map[string]any, len(m))
		for id, item := range m {
			out[string(id)] = item
		}
		return out, true
	default:
		return nil, false
	}
}

func isMap(v any) bool {
	_, ok := asMap(v)
	return ok
}

// GetPath looks up path in cfg. The first element names the top-level
// component; the rest walk nested maps. Missing keys yield nil.
func GetPath(cfg Configuration, path Path) any {
	if len(path) == 0 {
		return nil
	}
	root, ok := cfg[ID(path[0])]
	if !ok {
		return nil
	}
	return getIn(root, path[1:])
}

// getIn walks path through nested maps starting at v.
func getIn(v any, path Path) any {
	cur := v
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// assocIn returns a copy of m with value stored at path. Intermediate values
// that are not maps are replaced by maps. m is never modified.
func assocIn(m map[string]any, path Path, value any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	if len(path) == 1 {
		out[path[0]] = value
		return out
	}
	child, _ := asMap(out[path[0]])
	out[path[0]] = assocIn(child, path[1:], value)
	return out
}

// DeepMerge merges right into left. Nested maps merge key-wise; any other
// conflict is won by right. Neither operand is modified.
func DeepMerge(left, right any) any {
	lm, lok := asMap(left)
	rm, rok := asMap(right)
	if !lok || !rok {
		return right
	}
	out := make(map[string]any, len(lm)+len(rm))
	for k, v := range lm {
		out[k] = v
	}
	for k, rv := range rm {
		if lv, exists := out[k]; exists {
			out[k] = DeepMerge(lv, rv)
		} else {
			out[k] = rv
		}
	}
	return out
}

// mergeEntries returns the raw merge entries of a component value.
// A single non-list entry is treated as a one-element list.
func mergeEntries(v any) []any {
	comp, ok := asMap(v)
	if !ok {
		return nil
	}
	switch entries := comp[KeyMerge].(type) {
	case nil:
		return nil
	case []any:
		return entries
	case []string:
		out := make([]any, len(entries))
		for i, e := range entries {
			out[i] = e
		}
		return out
	case []MergeDef:
		out := make([]any, len(entries))
		for i, e := range entries {
			out[i] = e
		}
		return out
	default:
		return []any{entries}
	}
}

// MergeRoots is the merge-graph edge extractor: the root component of every
// well-formed merge entry of v.
func MergeRoots(v any) []ID {
	var roots []ID
	seen := make(map[ID]bool)
	for _, raw := range mergeEntries(v) {
		def, ok := NormalizeMergeDef(raw)
		if !ok {
			continue
		}
		root := def.Root()
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	return roots
}

// parseRefs normalizes a reference declaration into a RefMap. ok is false
// when the declaration has an unsupported shape or a non-ID target.
func parseRefs(v any) (RefMap, bool) {
	refs := make(RefMap)
	switch decl := v.(type) {
	case nil:
		return refs, true
	case RefMap:
		for alias, id := range decl {
			refs[alias] = id
		}
	case []string:
		for _, id := range decl {
			refs[id] = ID(id)
		}
	case []ID:
		for _, id := range decl {
			refs[string(id)] = id
		}
	case []any:
		for _, item := range decl {
			id, ok := refTarget(item)
			if !ok {
				return refs, false
			}
			refs[string(id)] = id
		}
	case map[string]string:
		for alias, id := range decl {
			refs[alias] = ID(id)
		}
	case map[string]any:
		for alias, item := range decl {
			id, ok := refTarget(item)
			if !ok {
				return refs, false
			}
			refs[alias] = id
		}
	default:
		return refs, false
	}
	return refs, true
}

func refTarget(v any) (ID, bool) {
	switch t := v.(type) {
	case string:
		return ID(t), t != ""
	case ID:
		return t, t != ""
	default:
		return "", false
	}
}

// RefMapOf returns the normalized reference map of a component value.
// Opaque values and malformed declarations yield an empty map.
func RefMapOf(v any) RefMap {
	comp, ok := asMap(v)
	if !ok {
		return RefMap{}
	}
	refs, ok := parseRefs(comp[KeyRefs])
	if !ok {
		return RefMap{}
	}
	return refs
}

// RefTargets is the reference-graph edge extractor.
func RefTargets(v any) []ID {
	return RefMapOf(v).Targets()
}

// stripReserved returns a copy of comp without the reserved keys.
func stripReserved(comp map[string]any) map[string]any {
	out := make(map[string]any, len(comp))
	for k, v := range comp {
		out[k] = v
	}
	for _, k := range reservedKeys {
		delete(out, k)
	}
	return out
}
