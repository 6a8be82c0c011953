package assembly

// ResolveMerge applies one normalized merge rule to the partial configuration
// of component id, reading sources from full.
//
// On success the merged copy is returned. When the source cannot be merged
// the partial configuration is returned unchanged together with a
// MergeError describing the problem. Neither partial nor full is modified.
func ResolveMerge(partial map[string]any, id ID, def MergeDef, full Configuration) (map[string]any, *MergeError) {
	if _, ok := full[def.Root()]; !ok {
		return partial, &MergeError{Kind: MergeErrorMissingRoot, Component: id, Def: def}
	}

	src := GetPath(full, def.From)
	srcMap, srcIsMap := asMap(src)

	if len(def.To) == 0 && !srcIsMap {
		return partial, &MergeError{Kind: MergeErrorNonMapSource, Component: id, Def: def}
	}
	if !def.Select.All && !srcIsMap {
		return partial, &MergeError{Kind: MergeErrorNonMapSelectSource, Component: id, Def: def}
	}

	var fragment any
	switch {
	case def.Select.All && srcIsMap && len(def.From) == 1:
		// A whole component carries its own merge rules; they were already
		// applied and must not replace the destination's rules.
		fragment = withoutKey(srcMap, KeyMerge)
	case def.Select.All:
		fragment = src
	default:
		projection := make(map[string]any, len(def.Select.Keys))
		for local, source := range def.Select.Keys {
			if v, ok := srcMap[source]; ok {
				projection[local] = v
			}
		}
		fragment = projection
	}

	if len(def.To) == 0 {
		merged, _ := asMap(DeepMerge(partial, fragment))
		return merged, nil
	}
	existing := getIn(partial, def.To)
	return assocIn(partial, def.To, DeepMerge(existing, fragment)), nil
}

func withoutKey(m map[string]any, key string) map[string]any {
	if _, ok := m[key]; !ok {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}
