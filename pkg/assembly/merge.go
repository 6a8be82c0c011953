package assembly

import (
	"github.com/rs/zerolog"
)

// errorLedger is the side channel that carries merge errors per component
// alongside the merged configuration.
type errorLedger map[ID][]*MergeError

// add appends errs to id, skipping errors already recorded there.
func (l errorLedger) add(id ID, errs ...*MergeError) {
	for _, e := range errs {
		dup := false
		for _, existing := range l[id] {
			if existing == e {
				dup = true
				break
			}
		}
		if !dup {
			l[id] = append(l[id], e)
		}
	}
}

// surviving collects the distinct errors attached to components present in cfg.
func (l errorLedger) surviving(cfg Configuration) []*MergeError {
	seen := make(map[*MergeError]bool)
	var out []*MergeError
	for _, id := range cfg.IDs() {
		for _, e := range l[id] {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}

// applyMerges resolves every merge rule of cfg in merge-graph order.
//
// Components are folded in topological order so a rule always reads a root
// whose own rules were already applied. Rules of one component apply in the
// order declared. Per-component problems go to the returned ledger and never
// stop unrelated components; a component inherits the ledger entries of every
// root it merges from. Only a merge-graph cycle fails the call.
func applyMerges(cfg Configuration, logger zerolog.Logger) (Configuration, errorLedger, error) {
	graph := BuildMergeGraph(cfg)
	order, err := graph.TopologicalSort()
	if err != nil {
		return nil, nil, err
	}

	out := cfg.Clone()
	ledger := make(errorLedger)

	for _, id := range order {
		entries := mergeEntries(out[id])
		if len(entries) == 0 {
			continue
		}
		partial, _ := asMap(out[id])

		for _, raw := range entries {
			def, ok := NormalizeMergeDef(raw)
			if !ok {
				ledger.add(id, &MergeError{Kind: MergeErrorInvalidDef, Component: id, Raw: raw})
				continue
			}

			ledger.add(id, ledger[def.Root()]...)

			next, mergeErr := ResolveMerge(partial, id, def, out)
			if mergeErr != nil {
				logger.Debug().
					Str("component", string(id)).
					Str("kind", string(mergeErr.Kind)).
					Str("from", def.From.String()).
					Msg("Merge rule recorded an error")
				ledger.add(id, mergeErr)
				continue
			}
			partial = next
		}

		out[id] = partial
	}

	logger.Debug().
		Int("components", len(out)).
		Int("components_with_errors", len(ledger)).
		Msg("Merge pipeline completed")

	return out, ledger, nil
}
