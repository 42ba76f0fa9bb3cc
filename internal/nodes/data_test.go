package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteldo/umbra/pkg/schema"
)

func TestVariableExecutorSetsValue(t *testing.T) {
	rt := newFakeRuntime()
	exec := &variableExecutor{kind: schema.KindVariable}

	params := mustParams(t, schema.VariableParams{Name: "count", Value: 42})
	require.NoError(t, exec.Execute(context.Background(), rt, params))

	got, ok := rt.GetVar("count")
	require.True(t, ok)
	assert.Equal(t, float64(42), got)
}

func TestVariableExecutorRequiresName(t *testing.T) {
	rt := newFakeRuntime()
	err := (&variableExecutor{kind: schema.KindVariable}).Execute(context.Background(), rt, mustParams(t, schema.VariableParams{Value: 1}))
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestMathOperations(t *testing.T) {
	tests := []struct {
		op       string
		operands []any
		want     float64
	}{
		{"add", []any{1, 2, 3}, 6},
		{"subtract", []any{10, 3, 2}, 5},
		{"multiply", []any{2, 3, 4}, 24},
		{"divide", []any{100, 4, 5}, 5},
		{"mod", []any{17, 5}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			rt := newFakeRuntime()
			params := mustParams(t, schema.MathParams{Operation: tt.op, Operands: tt.operands, ResultVar: "out"})
			require.NoError(t, (&mathExecutor{}).Execute(context.Background(), rt, params))

			got, ok := rt.GetVar("out")
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMathDivisionByZero(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.MathParams{Operation: "divide", Operands: []any{1, 0}, ResultVar: "out"})
	err := (&mathExecutor{}).Execute(context.Background(), rt, params)
	requireCode(t, err, schema.ErrCodeExecution)
}

func TestMathUnknownOperation(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.MathParams{Operation: "pow", Operands: []any{2, 3}, ResultVar: "out"})
	err := (&mathExecutor{}).Execute(context.Background(), rt, params)
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestStringOperations(t *testing.T) {
	tests := []struct {
		name   string
		params schema.StringParams
		want   any
	}{
		{"concat", schema.StringParams{Operation: "concat", Strings: []string{"a", "b", "c"}, Separator: "-", ResultVar: "out"}, "a-b-c"},
		{"upper", schema.StringParams{Operation: "upper", Strings: []string{"hello"}, ResultVar: "out"}, "HELLO"},
		{"lower", schema.StringParams{Operation: "lower", Strings: []string{"HeLLo"}, ResultVar: "out"}, "hello"},
		{"trim", schema.StringParams{Operation: "trim", Strings: []string{"  x  "}, ResultVar: "out"}, "x"},
		{"split", schema.StringParams{Operation: "split", Strings: []string{"a,b"}, Separator: ",", ResultVar: "out"}, []any{"a", "b"}},
		{"replace", schema.StringParams{Operation: "replace", Strings: []string{"foo bar foo"}, Search: "foo", Replacement: "baz", ResultVar: "out"}, "baz bar baz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			require.NoError(t, (&stringExecutor{}).Execute(context.Background(), rt, mustParams(t, tt.params)))

			got, ok := rt.GetVar("out")
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONParse(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.JSONParams{Operation: "parse", Data: `{"a":1}`, ResultVar: "out"})
	require.NoError(t, (&jsonExecutor{}).Execute(context.Background(), rt, params))

	got, _ := rt.GetVar("out")
	assert.Equal(t, map[string]any{"a": float64(1)}, got)
}

func TestJSONParseRejectsBadInput(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.JSONParams{Operation: "parse", Data: "{oops", ResultVar: "out"})
	err := (&jsonExecutor{}).Execute(context.Background(), rt, params)
	requireCode(t, err, schema.ErrCodeExecution)
}

func TestJSONStringify(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.JSONParams{Operation: "stringify", Data: map[string]any{"a": 1}, ResultVar: "out"})
	require.NoError(t, (&jsonExecutor{}).Execute(context.Background(), rt, params))

	got, _ := rt.GetVar("out")
	assert.JSONEq(t, `{"a":1}`, got.(string))
}

func TestJSONQuery(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.JSONParams{
		Operation: "query",
		Data:      map[string]any{"user": map[string]any{"name": "alice"}},
		Query:     ".user.name",
		ResultVar: "out",
	})
	require.NoError(t, (&jsonExecutor{}).Execute(context.Background(), rt, params))

	got, _ := rt.GetVar("out")
	assert.Equal(t, "alice", got)
}

func TestRegexFindsAllMatches(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.RegexParams{Pattern: `\d+`, Text: "a1 b22 c333", ResultVar: "out"})
	require.NoError(t, (&regexExecutor{}).Execute(context.Background(), rt, params))

	got, _ := rt.GetVar("out")
	assert.Equal(t, []any{"1", "22", "333"}, got)
}

func TestRegexInvalidPattern(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.RegexParams{Pattern: `[`, Text: "x", ResultVar: "out"})
	err := (&regexExecutor{}).Execute(context.Background(), rt, params)
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestRandomizeNumberStaysInRange(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.RandomizeParams{Type: "number", Min: 5, Max: 10, ResultVar: "out"})

	for i := 0; i < 50; i++ {
		require.NoError(t, (&randomizeExecutor{}).Execute(context.Background(), rt, params))
		got, _ := rt.GetVar("out")
		n := got.(float64)
		assert.GreaterOrEqual(t, n, float64(5))
		assert.LessOrEqual(t, n, float64(10))
	}
}

func TestRandomizeString(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.RandomizeParams{Type: "string", Length: 12, ResultVar: "out"})
	require.NoError(t, (&randomizeExecutor{}).Execute(context.Background(), rt, params))

	got, _ := rt.GetVar("out")
	assert.Len(t, got.(string), 12)
}

func TestSortAscendingAndDescending(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.SortParams{Array: []any{3, 1, 2}, ResultVar: "out"})
	require.NoError(t, (&sortExecutor{}).Execute(context.Background(), rt, params))
	got, _ := rt.GetVar("out")
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, got)

	params = mustParams(t, schema.SortParams{Array: []any{"b", "a", "c"}, Order: "descending", ResultVar: "out"})
	require.NoError(t, (&sortExecutor{}).Execute(context.Background(), rt, params))
	got, _ = rt.GetVar("out")
	assert.Equal(t, []any{"c", "b", "a"}, got)
}

func TestSortRejectsNonList(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.SortParams{Array: "nope", ResultVar: "out"})
	err := (&sortExecutor{}).Execute(context.Background(), rt, params)
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestFilterKeepsMatchingItems(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.FilterParams{
		Array:     []any{1, 5, 10, 2},
		Condition: "item > 3",
		ResultVar: "out",
	})
	require.NoError(t, (&filterExecutor{}).Execute(context.Background(), rt, params))

	got, _ := rt.GetVar("out")
	assert.Equal(t, []any{float64(5), float64(10)}, got)
}

func TestFilterSeesRunVariables(t *testing.T) {
	rt := newFakeRuntime()
	rt.SetVar("threshold", 4)
	params := mustParams(t, schema.FilterParams{
		Array:     []any{1, 5, 10},
		Condition: "item > threshold",
		ResultVar: "out",
	})
	require.NoError(t, (&filterExecutor{}).Execute(context.Background(), rt, params))

	got, _ := rt.GetVar("out")
	assert.Equal(t, []any{float64(5), float64(10)}, got)
}

func TestMapTransformsItems(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.MapParams{
		Array:     []any{1, 2, 3},
		Operation: "item * 2",
		ResultVar: "out",
	})
	require.NoError(t, (&mapExecutor{}).Execute(context.Background(), rt, params))

	got, _ := rt.GetVar("out")
	require.Len(t, got, 3)
}

func TestDateFormat(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.DateParams{Operation: "format", Layout: "2006-01-02", ResultVar: "out"})
	require.NoError(t, (&dateExecutor{}).Execute(context.Background(), rt, params))

	got, _ := rt.GetVar("out")
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, got)
}

func TestDateTimestamp(t *testing.T) {
	rt := newFakeRuntime()
	params := mustParams(t, schema.DateParams{Operation: "timestamp", ResultVar: "out"})
	require.NoError(t, (&dateExecutor{}).Execute(context.Background(), rt, params))

	got, _ := rt.GetVar("out")
	assert.Greater(t, got.(float64), float64(0))
}
