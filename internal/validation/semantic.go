package validation

import (
	"encoding/json"
	"fmt"

	"github.com/soteldo/umbra/pkg/schema"
)

// validateSemantic performs graph analysis the JSON Schema cannot express:
// unique node IDs, known kinds, exactly one trigger, edge endpoints that
// exist, and per-kind branch edge requirements.
func validateSemantic(g *schema.WorkflowGraph) *Result {
	result := &Result{}

	nodeIDs := make(map[string]bool, len(g.Nodes))
	triggers := 0
	for i, n := range g.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if nodeIDs[n.ID] {
			result.AddError(path, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		nodeIDs[n.ID] = true

		if !schema.KnownKind(n.Kind) {
			result.AddError(path, fmt.Sprintf("unknown node kind %q", n.Kind))
		}
		if n.Kind == schema.KindTrigger {
			triggers++
		}
	}

	if triggers == 0 {
		result.AddError("nodes", "graph has no trigger node")
	} else if triggers > 1 {
		result.AddError("nodes", fmt.Sprintf("graph has %d trigger nodes, expected exactly one", triggers))
	}

	// Outgoing edge labels per node, plus dangling endpoint checks.
	outLabels := make(map[string]map[string]int, len(g.Nodes))
	incoming := make(map[string]int, len(g.Nodes))
	for j, e := range g.Edges {
		path := fmt.Sprintf("edges[%d]", j)
		if !nodeIDs[e.Source] {
			result.AddError(path, fmt.Sprintf("references non-existent source node %q", e.Source))
			continue
		}
		if !nodeIDs[e.Target] {
			result.AddError(path, fmt.Sprintf("references non-existent target node %q", e.Target))
			continue
		}

		labels := outLabels[e.Source]
		if labels == nil {
			labels = make(map[string]int)
			outLabels[e.Source] = labels
		}
		labels[e.Label]++
		if labels[e.Label] == 2 {
			result.AddError(path, fmt.Sprintf("node %q has multiple outgoing edges labeled %q", e.Source, e.Label))
		}
		incoming[e.Target]++
	}

	for i := range g.Nodes {
		validateNodeEdges(&g.Nodes[i], fmt.Sprintf("nodes[%d]", i), outLabels[g.Nodes[i].ID], incoming[g.Nodes[i].ID], result)
	}

	return result
}

// validateNodeEdges checks the branch edges each node kind expects.
func validateNodeEdges(n *schema.Node, path string, labels map[string]int, incoming int, result *Result) {
	has := func(label string) bool { return labels[label] > 0 }

	switch n.Kind {
	case schema.KindTrigger:
		if incoming > 0 {
			result.AddError(path, "trigger node must not have incoming edges")
		}

	case schema.KindIf:
		if !has(schema.EdgeTrue) && !has(schema.EdgeFalse) {
			result.AddError(path, fmt.Sprintf("if node %q has neither a %q nor a %q edge", n.ID, "true", "false"))
		}

	case schema.KindSwitch:
		if !has(schema.EdgeDefault) {
			result.AddWarning(path, fmt.Sprintf("switch node %q has no default edge; unmatched values fall through", n.ID))
		}

	case schema.KindLoop, schema.KindForEach, schema.KindWhile:
		if !has(schema.EdgeBody) {
			result.AddError(path, fmt.Sprintf("%s node %q has no body edge", n.Kind, n.ID))
		}
		if !has(schema.EdgeDone) {
			result.AddWarning(path, fmt.Sprintf("%s node %q has no done edge; the run ends after the loop", n.Kind, n.ID))
		}

	case schema.KindTry:
		if !has(schema.EdgeBody) {
			result.AddError(path, fmt.Sprintf("try node %q has no body edge", n.ID))
		}
		if !has(schema.EdgeCatch) {
			result.AddWarning(path, fmt.Sprintf("try node %q has no catch edge; failures propagate", n.ID))
		}

	case schema.KindRetry:
		if !has(schema.EdgeBody) {
			result.AddError(path, fmt.Sprintf("retry node %q has no body edge", n.ID))
		}
		if len(n.Params) > 0 {
			var p schema.RetryParams
			if err := json.Unmarshal(n.Params, &p); err == nil && p.TimesVariableRef == "" && p.Times > 10 {
				result.AddWarning(path+".params.times",
					fmt.Sprintf("high retry count (%d) may cause excessive delays", p.Times))
			}
		}

	case schema.KindExecuteWorkflow:
		var p schema.ExecuteWorkflowParams
		if len(n.Params) > 0 {
			_ = json.Unmarshal(n.Params, &p)
		}
		if p.WorkflowID == "" && p.WorkflowIDVariableRef == "" {
			result.AddError(path+".params", fmt.Sprintf("executeWorkflow node %q names no workflow", n.ID))
		}

	case schema.KindBreak, schema.KindContinue, schema.KindEnd, schema.KindReturn:
		if len(labels) > 0 {
			result.AddWarning(path, fmt.Sprintf("%s node %q has outgoing edges that are never followed", n.Kind, n.ID))
		}
	}
}
