package assembly

// ExtractSubgraph restricts cfg to ids and everything they transitively
// reference. With no ids the configuration is returned unchanged (as a copy).
// Requested ids that are not keys of cfg contribute nothing. A reference
// cycle reachable from ids is a structural cycle error.
func ExtractSubgraph(cfg Configuration, ids []ID) (Configuration, error) {
	if len(ids) == 0 {
		return cfg.Clone(), nil
	}

	graph := BuildReferenceGraph(cfg)
	closure := graph.Closure(ids)
	if cycle := graph.Subgraph(closure).DetectCycle(); cycle != nil {
		return nil, NewCycleError(GraphReference, cycle)
	}

	out := make(Configuration, len(closure))
	for _, id := range closure {
		if v, ok := cfg[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}
