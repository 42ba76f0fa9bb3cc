package validation

import (
	"github.com/soteldo/umbra/pkg/schema"
)

// GraphValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (node kinds, trigger, edge endpoints, branch edges)
// 3. Reachability (every node reachable from the trigger)
type GraphValidator struct {
	jsonSchema *JSONSchemaValidator
}

var _ Validator = (*GraphValidator)(nil)

// NewGraphValidator creates a GraphValidator with the graph schema pre-compiled.
func NewGraphValidator() (*GraphValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &GraphValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: later stages assume a well-formed document.
func (gv *GraphValidator) Validate(g *schema.WorkflowGraph) *Result {
	if g == nil {
		r := &Result{}
		r.AddError("/", "workflow graph is nil")
		return r
	}

	// Stage 1: Structural (JSON Schema).
	result := validateStructural(gv.jsonSchema, g)
	if !result.Valid() {
		return result
	}

	// Stage 2: Semantic.
	result.Merge(validateSemantic(g))

	// Stage 3: Reachability (skip if semantic errors, the graph may be malformed).
	if result.Valid() {
		result.Merge(validateReachability(g))
	}

	return result
}

// ValidateGraph satisfies the Validator interface.
func (gv *GraphValidator) ValidateGraph(g *schema.WorkflowGraph) error {
	return gv.Validate(g).ToError()
}

// ValidateVariables delegates to the underlying JSONSchemaValidator.
func (gv *GraphValidator) ValidateVariables(vars map[string]any, varSchema []byte) error {
	return gv.jsonSchema.ValidateVariables(vars, varSchema)
}

// validateStructural wraps JSONSchemaValidator.ValidateGraphDocument,
// converting its error output into a Result.
func validateStructural(v *JSONSchemaValidator, g *schema.WorkflowGraph) *Result {
	result := &Result{}

	err := v.ValidateGraphDocument(g)
	if err == nil {
		return result
	}

	uerr, ok := err.(*schema.UmbraError)
	if !ok {
		result.AddError("/", err.Error())
		return result
	}

	if uerr.Details != nil {
		if violations, ok := uerr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", v)
			}
			return result
		}
	}
	result.AddError("/", uerr.Message)
	return result
}
