package schema

// ValidateStructure enforces the structural graph invariants: unique node
// IDs, known node kinds, exactly one trigger node, and edges that reference
// existing nodes. The interpreter runs it before every execution; the full
// validation pipeline (JSON Schema plus semantic and reachability analysis)
// lives in internal/validation.
func ValidateStructure(g *WorkflowGraph) error {
	if g == nil {
		return NewError(ErrCodeValidation, "workflow graph is nil")
	}

	seen := make(map[string]struct{}, len(g.Nodes))
	triggers := 0
	for _, n := range g.Nodes {
		if _, dup := seen[n.ID]; dup {
			return NewErrorf(ErrCodeValidation, "duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}

		if !KnownKind(n.Kind) {
			return NewErrorf(ErrCodeValidation, "unknown node kind %q (node %s)", n.Kind, n.ID)
		}
		if n.Kind == KindTrigger {
			triggers++
		}
	}

	if triggers == 0 {
		return NewError(ErrCodeValidation, "graph has no trigger node")
	}
	if triggers > 1 {
		return NewErrorf(ErrCodeValidation, "graph has %d trigger nodes, expected exactly one", triggers)
	}

	for _, e := range g.Edges {
		if _, ok := seen[e.Source]; !ok {
			return NewErrorf(ErrCodeValidation, "edge references unknown source node %q", e.Source)
		}
		if _, ok := seen[e.Target]; !ok {
			return NewErrorf(ErrCodeValidation, "edge references unknown target node %q", e.Target)
		}
	}

	return nil
}
