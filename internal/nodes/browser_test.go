package nodes

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteldo/umbra/pkg/schema"
)

func mustParams(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestOpenURL(t *testing.T) {
	rt := newFakeRuntime()
	exec := &openURLExecutor{}

	err := exec.Execute(context.Background(), rt, mustParams(t, schema.OpenURLParams{URL: "https://example.com"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"goto https://example.com"}, rt.session.driver.calls)
}

func TestOpenURLMissingURL(t *testing.T) {
	rt := newFakeRuntime()
	err := (&openURLExecutor{}).Execute(context.Background(), rt, nil)
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestOpenURLWithoutSession(t *testing.T) {
	rt := newFakeRuntime()
	rt.session = nil
	err := (&openURLExecutor{}).Execute(context.Background(), rt, mustParams(t, schema.OpenURLParams{URL: "https://example.com"}))
	requireCode(t, err, schema.ErrCodeBrowserUnavailable)
}

func TestClickVariants(t *testing.T) {
	params := mustParams(t, schema.ClickParams{
		Selector: schema.Selector{SelectorType: "css", SelectorValue: ".btn"},
	})
	tests := []struct {
		kind schema.NodeKind
		want string
	}{
		{schema.KindClick, "click .btn button= count=1"},
		{schema.KindDoubleClick, "click .btn button= count=2"},
		{schema.KindRightClick, "click .btn button=right count=1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			rt := newFakeRuntime()
			exec := &clickExecutor{kind: tt.kind}
			require.NoError(t, exec.Execute(context.Background(), rt, params))
			assert.Equal(t, []string{tt.want}, rt.session.driver.calls)
		})
	}
}

func TestTypeUsesFillWithoutDelay(t *testing.T) {
	rt := newFakeRuntime()
	exec := &typeExecutor{}

	params := mustParams(t, schema.TypeParams{
		Selector: schema.Selector{SelectorValue: "#user"},
		Text:     "alice",
	})
	require.NoError(t, exec.Execute(context.Background(), rt, params))
	assert.Equal(t, []string{"fill #user value=alice"}, rt.session.driver.calls)
}

func TestTypeSimulatesKeystrokesWithDelay(t *testing.T) {
	rt := newFakeRuntime()
	exec := &typeExecutor{}

	params := mustParams(t, schema.TypeParams{
		Selector: schema.Selector{SelectorValue: "#user"},
		Text:     "alice",
		Delay:    50,
	})
	require.NoError(t, exec.Execute(context.Background(), rt, params))
	assert.Equal(t, []string{"type #user text=alice delay=50"}, rt.session.driver.calls)
}

func TestPressKeyWithModifier(t *testing.T) {
	rt := newFakeRuntime()
	exec := &pressKeyExecutor{}

	params := mustParams(t, schema.PressKeyParams{Key: "a", Modifier: "Control"})
	require.NoError(t, exec.Execute(context.Background(), rt, params))
	assert.Equal(t, []string{"press  key=Control+a"}, rt.session.driver.calls)
}

func TestScrollDirections(t *testing.T) {
	tests := []struct {
		name   string
		params schema.ScrollParams
		want   string
	}{
		{"down default amount", schema.ScrollParams{Direction: "down"}, "scroll dx=0 dy=500"},
		{"up", schema.ScrollParams{Direction: "up", Amount: 200}, "scroll dx=0 dy=-200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			require.NoError(t, (&scrollExecutor{}).Execute(context.Background(), rt, mustParams(t, tt.params)))
			assert.Equal(t, []string{tt.want}, rt.session.driver.calls)
		})
	}
}

func TestGetTextStoresResult(t *testing.T) {
	rt := newFakeRuntime()
	rt.session.driver.texts = map[string]string{".title": "Hello"}

	params := mustParams(t, schema.GetTextParams{
		Selector:  schema.Selector{SelectorValue: ".title"},
		ResultVar: "title",
	})
	require.NoError(t, (&getTextExecutor{}).Execute(context.Background(), rt, params))

	got, ok := rt.GetVar("title")
	require.True(t, ok)
	assert.Equal(t, "Hello", got)
}

func TestGetAttributeStoresResult(t *testing.T) {
	rt := newFakeRuntime()
	rt.session.driver.attrs = map[string]string{"a.link/href": "/home"}

	params := mustParams(t, schema.GetAttributeParams{
		Selector:  schema.Selector{SelectorValue: "a.link"},
		Attribute: "href",
		ResultVar: "href",
	})
	require.NoError(t, (&getAttributeExecutor{}).Execute(context.Background(), rt, params))

	got, ok := rt.GetVar("href")
	require.True(t, ok)
	assert.Equal(t, "/home", got)
}

func TestGetURLStoresResult(t *testing.T) {
	rt := newFakeRuntime()
	rt.session.driver.url = "https://example.com/page"

	params := mustParams(t, schema.GetURLParams{ResultVar: "current"})
	require.NoError(t, (&getURLExecutor{}).Execute(context.Background(), rt, params))

	got, ok := rt.GetVar("current")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/page", got)
}

func TestTabLifecycle(t *testing.T) {
	rt := newFakeRuntime()
	ctx := context.Background()

	require.NoError(t, (&newTabExecutor{}).Execute(ctx, rt, nil))
	assert.Equal(t, 2, rt.session.TabCount())
	assert.Equal(t, 1, rt.session.active)

	require.NoError(t, (&switchTabExecutor{}).Execute(ctx, rt, mustParams(t, schema.SwitchTabParams{TabIndex: 0})))
	assert.Equal(t, 0, rt.session.active)

	require.NoError(t, (&closeTabExecutor{}).Execute(ctx, rt, nil))
	assert.Equal(t, 1, rt.session.TabCount())

	err := (&closeTabExecutor{}).Execute(ctx, rt, nil)
	requireCode(t, err, schema.ErrCodeExecution)
}

func TestSwitchTabOutOfRange(t *testing.T) {
	rt := newFakeRuntime()
	err := (&switchTabExecutor{}).Execute(context.Background(), rt, mustParams(t, schema.SwitchTabParams{TabIndex: 5}))
	requireCode(t, err, schema.ErrCodeExecution)
}

func TestDelay(t *testing.T) {
	rt := newFakeRuntime()
	start := time.Now()
	err := (&delayExecutor{}).Execute(context.Background(), rt, mustParams(t, schema.DelayParams{Duration: 20}))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDelayCancelled(t *testing.T) {
	rt := newFakeRuntime()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&delayExecutor{}).Execute(ctx, rt, mustParams(t, schema.DelayParams{Duration: 5000}))
	requireCode(t, err, schema.ErrCodeCancelled)
}

func TestWaitForSelectorFailureIsTimeout(t *testing.T) {
	rt := newFakeRuntime()
	rt.session.driver.err = assert.AnError

	params := mustParams(t, schema.WaitForSelectorParams{
		Selector: schema.Selector{SelectorValue: ".spinner", Timeout: 100},
	})
	err := (&waitForSelectorExecutor{}).Execute(context.Background(), rt, params)
	requireCode(t, err, schema.ErrCodeTimeout)
}
