package nodes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteldo/umbra/pkg/schema"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var ue *schema.UmbraError
	require.True(t, errors.As(err, &ue), "expected UmbraError, got %T: %v", err, err)
	assert.Equal(t, code, ue.Code)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&openURLExecutor{}))

	exec, err := r.Get(schema.KindOpenURL)
	require.NoError(t, err)
	assert.Equal(t, schema.KindOpenURL, exec.Kind())

	assert.True(t, r.Has(schema.KindOpenURL))
	assert.False(t, r.Has(schema.KindClick))
}

func TestRegistryDuplicateKind(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&openURLExecutor{}))

	err := r.Register(&openURLExecutor{})
	requireCode(t, err, schema.ErrCodeConflict)
}

func TestRegistryGetUnknownKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(schema.KindClick)
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestDefaultRegistryCoversActionKinds(t *testing.T) {
	r, err := NewDefaultRegistry(ServiceConfig{})
	require.NoError(t, err)

	controlFlow := map[schema.NodeKind]bool{
		schema.KindTrigger: true, schema.KindEnd: true, schema.KindReturn: true,
		schema.KindIf: true, schema.KindSwitch: true, schema.KindLoop: true,
		schema.KindForEach: true, schema.KindWhile: true, schema.KindBreak: true,
		schema.KindContinue: true, schema.KindTry: true, schema.KindRetry: true,
		schema.KindExecuteWorkflow: true,
	}
	for _, kind := range schema.AllKinds {
		if controlFlow[kind] {
			assert.False(t, r.Has(kind), "control-flow kind %q must not have an executor", kind)
			continue
		}
		assert.True(t, r.Has(kind), "missing executor for kind %q", kind)
	}
}

func TestBuildSelector(t *testing.T) {
	tests := []struct {
		name    string
		sel     schema.Selector
		want    string
		wantErr bool
	}{
		{name: "css", sel: schema.Selector{SelectorType: "css", SelectorValue: ".btn"}, want: ".btn"},
		{name: "default is css", sel: schema.Selector{SelectorValue: "#main"}, want: "#main"},
		{name: "xpath", sel: schema.Selector{SelectorType: "xpath", SelectorValue: "//div"}, want: "xpath=//div"},
		{name: "text", sel: schema.Selector{SelectorType: "text", SelectorValue: "Submit"}, want: "text=Submit"},
		{name: "id", sel: schema.Selector{SelectorType: "id", SelectorValue: "login"}, want: "#login"},
		{name: "empty value", sel: schema.Selector{SelectorType: "css"}, wantErr: true},
		{name: "unknown type", sel: schema.Selector{SelectorType: "aria", SelectorValue: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildSelector(tt.sel)
			if tt.wantErr {
				requireCode(t, err, schema.ErrCodeValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeParamsInvalidJSON(t *testing.T) {
	var p schema.OpenURLParams
	err := decodeParams([]byte("{not json"), &p)
	requireCode(t, err, schema.ErrCodeValidation)
}
