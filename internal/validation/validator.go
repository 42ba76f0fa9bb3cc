package validation

import "github.com/soteldo/umbra/pkg/schema"

// Validator checks workflow graphs for correctness before they are stored
// or executed. Uses JSON Schema Draft 2020-12 for document validation.
type Validator interface {
	ValidateGraph(g *schema.WorkflowGraph) error
	ValidateVariables(vars map[string]any, varSchema []byte) error
}
