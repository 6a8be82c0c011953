package assembly

import (
	"github.com/go-playground/validator/v10"
)

// selectAllKeyword is the configuration spelling of an explicit All selection.
const selectAllKeyword = "all"

var defValidator = validator.New()

// NormalizeMergeDef canonicalizes a merge entry into {to, from, select} form.
//
// A bare ID becomes {to: [], from: [id], select: All}. A structured rule
// defaults to to an empty path and select to All, requires from, wraps
// single-key to/from values into one-element paths and expands a list-form
// select into an identity mapping. Already normalized MergeDef values are
// returned unchanged. ok is false when raw has neither shape.
func NormalizeMergeDef(raw any) (MergeDef, bool) {
	var def MergeDef

	switch v := raw.(type) {
	case MergeDef:
		def = MergeDef{To: clonePath(v.To), From: clonePath(v.From), Select: cloneSelection(v.Select)}
	case *MergeDef:
		if v == nil {
			return MergeDef{}, false
		}
		return NormalizeMergeDef(*v)
	case ID:
		def = MergeDef{To: Path{}, From: Path{string(v)}, Select: SelectAll}
	case string:
		def = MergeDef{To: Path{}, From: Path{v}, Select: SelectAll}
	case map[string]any:
		to, ok := toPath(v["to"])
		if !ok {
			return MergeDef{}, false
		}
		fromRaw, present := v["from"]
		if !present {
			return MergeDef{}, false
		}
		from, ok := toPath(fromRaw)
		if !ok {
			return MergeDef{}, false
		}
		sel, ok := toSelection(v["select"])
		if !ok {
			return MergeDef{}, false
		}
		def = MergeDef{To: to, From: from, Select: sel}
	default:
		return MergeDef{}, false
	}

	if def.To == nil {
		def.To = Path{}
	}
	if err := defValidator.Struct(def); err != nil {
		return MergeDef{}, false
	}
	return def, true
}

// toPath accepts nil, a single key or a list of keys.
func toPath(v any) (Path, bool) {
	switch p := v.(type) {
	case nil:
		return Path{}, true
	case string:
		return Path{p}, true
	case ID:
		return Path{string(p)}, true
	case Path:
		return clonePath(p), true
	case []string:
		return clonePath(p), true
	case []any:
		out := make(Path, 0, len(p))
		for _, item := range p {
			switch k := item.(type) {
			case string:
				out = append(out, k)
			case ID:
				out = append(out, string(k))
			default:
				return nil, false
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// toSelection accepts nil or "all" (All), a key list (identity) or a
// local-to-source key map.
func toSelection(v any) (Selection, bool) {
	switch s := v.(type) {
	case nil:
		return SelectAll, true
	case Selection:
		return cloneSelection(s), true
	case string:
		if s == selectAllKeyword {
			return SelectAll, true
		}
		return Selection{}, false
	case []string:
		keys := make(map[string]string, len(s))
		for _, k := range s {
			keys[k] = k
		}
		return Selection{Keys: keys}, true
	case []any:
		keys := make(map[string]string, len(s))
		for _, item := range s {
			k, ok := item.(string)
			if !ok {
				return Selection{}, false
			}
			keys[k] = k
		}
		return Selection{Keys: keys}, true
	case map[string]string:
		keys := make(map[string]string, len(s))
		for local, source := range s {
			keys[local] = source
		}
		return Selection{Keys: keys}, true
	case map[string]any:
		keys := make(map[string]string, len(s))
		for local, item := range s {
			source, ok := item.(string)
			if !ok {
				return Selection{}, false
			}
			keys[local] = source
		}
		return Selection{Keys: keys}, true
	default:
		return Selection{}, false
	}
}

func clonePath[P ~[]string](p P) Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

func cloneSelection(s Selection) Selection {
	if s.All {
		return SelectAll
	}
	keys := make(map[string]string, len(s.Keys))
	for local, source := range s.Keys {
		keys[local] = source
	}
	return Selection{Keys: keys}
}
