package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteldo/umbra/pkg/schema"
)

func newJSONValidator(t *testing.T) *JSONSchemaValidator {
	t.Helper()
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	return v
}

func TestValidateGraphDocumentAcceptsWellFormedGraph(t *testing.T) {
	v := newJSONValidator(t)
	require.NoError(t, v.ValidateGraphDocument(linearGraph()))
}

func TestValidateGraphDocumentRejectsEmptyNodeID(t *testing.T) {
	v := newJSONValidator(t)
	g := linearGraph()
	g.Nodes[1].ID = ""

	uerr := requireValidationError(t, v.ValidateGraphDocument(g))
	violations, ok := uerr.Details["violations"].([]string)
	require.True(t, ok)
	require.NotEmpty(t, violations)
	assert.Contains(t, violations[0], "/nodes/1")
}

func TestValidateGraphDocumentRejectsEmptyEdgeTarget(t *testing.T) {
	v := newJSONValidator(t)
	g := linearGraph()
	g.Edges[0].Target = ""

	uerr := requireValidationError(t, v.ValidateGraphDocument(g))
	violations, ok := uerr.Details["violations"].([]string)
	require.True(t, ok)
	assert.Contains(t, violations[0], "/edges/0")
}

func TestValidateGraphDocumentRejectsEmptyGraph(t *testing.T) {
	v := newJSONValidator(t)
	requireValidationError(t, v.ValidateGraphDocument(&schema.WorkflowGraph{}))
}

// --- Variable schema validation ---

const varSchema = `{
  "type": "object",
  "required": ["username"],
  "properties": {
    "username": { "type": "string", "minLength": 1 },
    "attempts": { "type": "integer", "minimum": 0 }
  }
}`

func TestValidateVariablesAcceptsMatchingInput(t *testing.T) {
	v := newJSONValidator(t)
	err := v.ValidateVariables(map[string]any{
		"username": "ada",
		"attempts": 3,
	}, []byte(varSchema))
	require.NoError(t, err)
}

func TestValidateVariablesRejectsMissingRequired(t *testing.T) {
	v := newJSONValidator(t)
	err := v.ValidateVariables(map[string]any{"attempts": 3}, []byte(varSchema))

	uerr := requireValidationError(t, err)
	violations, ok := uerr.Details["violations"].([]string)
	require.True(t, ok)
	assert.Contains(t, violations[0], "username")
}

func TestValidateVariablesRejectsWrongType(t *testing.T) {
	v := newJSONValidator(t)
	err := v.ValidateVariables(map[string]any{
		"username": "ada",
		"attempts": "many",
	}, []byte(varSchema))
	requireValidationError(t, err)
}

func TestValidateVariablesSkipsWhenNoSchema(t *testing.T) {
	v := newJSONValidator(t)
	require.NoError(t, v.ValidateVariables(map[string]any{"anything": true}, nil))
	require.NoError(t, v.ValidateVariables(nil, nil))
}

func TestValidateVariablesRejectsInvalidSchema(t *testing.T) {
	v := newJSONValidator(t)
	err := v.ValidateVariables(map[string]any{}, []byte(`{"type": 42}`))

	uerr := requireValidationError(t, err)
	assert.Contains(t, uerr.Message, "invalid variable schema")
}

func TestValidateVariablesCachesCompiledSchemas(t *testing.T) {
	v := newJSONValidator(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, v.ValidateVariables(map[string]any{"username": "ada"}, []byte(varSchema)))
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	assert.Len(t, v.cache, 1)
}
