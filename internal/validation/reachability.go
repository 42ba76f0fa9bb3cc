package validation

import (
	"fmt"

	"github.com/soteldo/umbra/pkg/schema"
)

// validateReachability walks the graph from the trigger node (BFS over all
// outgoing edges, branch labels included) and flags nodes no run can reach.
// Cycles are legal here: loop back edges are how the interpreter iterates.
func validateReachability(g *schema.WorkflowGraph) *Result {
	result := &Result{}

	trigger := g.TriggerNode()
	if trigger == nil {
		return result // absence already reported by the semantic stage
	}

	adjacency := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	reachable := map[string]bool{trigger.ID: true}
	queue := []string{trigger.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[id] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for i, n := range g.Nodes {
		if !reachable[n.ID] {
			result.AddWarning(fmt.Sprintf("nodes[%d]", i),
				fmt.Sprintf("node %q is unreachable from the trigger", n.ID))
		}
	}

	return result
}
