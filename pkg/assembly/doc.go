// Package assembly resolves a declarative component configuration into a
// form a dependency-injection runtime can instantiate.
//
// # Overview
//
// A Configuration maps component IDs to values. A value that is a map is a
// component spec; anything else is an opaque value that can only serve as a
// merge or reference source. Component specs may carry three reserved keys:
//
//   - create-ref: the namespace/name identifier of the constructor
//   - refs: a list of component IDs, or a map of local alias to component ID
//   - merge: an ordered list of merge rules pulling configuration from elsewhere
//
// Assembly runs in stages:
//
//  1. Merge - fold every merge rule over the merge graph in dependency order
//  2. Restrict - keep the requested IDs and their reference closure
//  3. Validate - merge errors of surviving components, create-ref shape,
//     reference declarations and targets, reference cycles
//  4. Handoff - strip reserved keys and pair each component with its RefMap
//
// # Merge Rules
//
// A merge rule is either a bare component ID or a structured rule:
//
//	merge:
//	  - base                      # whole component, merged at the root
//	  - from: [defaults, server]  # nested source
//	    to: [http]                # destination inside this component
//	    select: {listen: addr}    # local key <- source key
//
// Merging is a right-biased deep merge: nested maps merge key-wise and any
// other conflict is won by the incoming value. Input configurations are
// never modified.
//
// # Error Handling
//
// Problems found while merging are recorded per component in a side ledger
// instead of aborting, so a broken branch never prevents unrelated
// components from resolving. Recorded errors follow merges: a component
// that merges from a broken root inherits its errors. Only errors of
// components that survive restriction fail Assemble. MergedConfig never
// reports them and fails only on structural cycles.
//
// Failures are *Error values classified by ErrorKind and matchable with
// errors.Is against the ErrX sentinels. Assemble reports every problem it
// finds; several problems arrive joined and Problems or ProblemOf unpack
// them:
//
//	asm, err := assembly.Assemble(cfg, "app")
//	if missing, ok := assembly.ProblemOf(err, assembly.ErrorKindMissingReference); ok {
//	    fmt.Println(missing.Missing)
//	}
//
// # Ordering
//
// Assembly.Order lists every surviving component after the components it
// references. Independent components appear in a deterministic but otherwise
// unspecified order; callers must rely only on dependency order.
package assembly
