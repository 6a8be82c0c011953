package assembly

import (
	"github.com/rs/zerolog"
)

// Assembler runs assembly passes. It holds no state between calls and is
// safe for concurrent use.
type Assembler struct {
	logger zerolog.Logger
}

// New creates an assembler that logs through logger.
func New(logger zerolog.Logger) *Assembler {
	return &Assembler{
		logger: logger.With().Str("component", "assembler").Logger(),
	}
}

var defaultAssembler = New(zerolog.Nop())

// MergedConfig applies all merge rules and, when ids are given, restricts
// the result to their reference closure. It does not validate references or
// report merge errors; it only fails on structural cycles.
func MergedConfig(cfg Configuration, ids ...ID) (Configuration, error) {
	return defaultAssembler.MergedConfig(cfg, ids...)
}

// Assemble resolves cfg into an Assembly for the requested ids (all
// components when none are given).
func Assemble(cfg Configuration, ids ...ID) (*Assembly, error) {
	return defaultAssembler.Assemble(cfg, ids...)
}

// MergedConfig is the logging variant of the package-level MergedConfig.
func (a *Assembler) MergedConfig(cfg Configuration, ids ...ID) (Configuration, error) {
	merged, _, err := a.merge(cfg, ids)
	return merged, err
}

func (a *Assembler) merge(cfg Configuration, ids []ID) (Configuration, errorLedger, error) {
	merged, ledger, err := applyMerges(cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return merged, ledger, nil
	}

	for _, id := range ids {
		if _, ok := merged[id]; !ok {
			a.logger.Debug().Str("id", string(id)).Msg("Requested component not in configuration")
		}
	}

	restricted, err := ExtractSubgraph(merged, ids)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug().
		Int("requested", len(ids)).
		Int("selected", len(restricted)).
		Int("total", len(merged)).
		Msg("Configuration restricted to reference closure")
	return restricted, ledger, nil
}

// Assemble is the logging variant of the package-level Assemble.
//
// Validation runs after merging and restriction and checks merge errors of
// surviving components, create-ref shape, reference declarations and
// targets, and reference-graph cycles. Every failing check is reported: a
// single problem is returned as its *Error, several are joined with
// errors.Join (see Problems). No partial assembly is produced.
func (a *Assembler) Assemble(cfg Configuration, ids ...ID) (*Assembly, error) {
	merged, ledger, err := a.merge(cfg, ids)
	if err != nil {
		return nil, err
	}

	var problems []error
	if errs := ledger.surviving(merged); len(errs) > 0 {
		problems = append(problems, NewMergeFailedError(errs))
	}
	if err := ValidateCreateRefs(merged); err != nil {
		problems = append(problems, err)
	}
	if err := ValidateReferences(merged); err != nil {
		problems = append(problems, err)
	}
	order, err := BuildReferenceGraph(merged).TopologicalSort()
	if err != nil {
		problems = append(problems, err)
	}
	if err := joinProblems(problems); err != nil {
		a.logger.Debug().Int("problems", len(Problems(err))).Msg("Assembly rejected")
		return nil, err
	}

	asm := &Assembly{
		Config:     make(Configuration, len(merged)),
		Refs:       make(map[ID]RefMap),
		CreateRefs: make(map[ID]string),
		Order:      order,
	}
	for id, v := range merged {
		comp, ok := asMap(v)
		if !ok {
			asm.Config[id] = v
			continue
		}
		asm.Config[id] = stripReserved(comp)
		asm.Refs[id] = RefMapOf(comp)
		if ref, ok := comp[KeyCreateRef].(string); ok {
			asm.CreateRefs[id] = ref
		}
	}

	a.logger.Debug().
		Int("components", len(asm.Config)).
		Int("wired", len(asm.Refs)).
		Msg("Assembly completed")

	return asm, nil
}
