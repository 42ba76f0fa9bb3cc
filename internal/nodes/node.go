package nodes

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/soteldo/umbra/internal/browser"
	"github.com/soteldo/umbra/internal/expressions"
	"github.com/soteldo/umbra/pkg/schema"
)

// Runtime is the per-run environment handed to executors: the run's
// variables, the profile's browser session, and the expression engines.
type Runtime interface {
	// Session returns the run's browser session, or a BROWSER_UNAVAILABLE
	// error for runs that have none (pure data workflows).
	Session() (browser.TabSession, error)
	// Driver returns the driver for the active tab.
	Driver() (browser.PageDriver, error)

	GetVar(name string) (any, bool)
	SetVar(name string, value any)
	// Vars returns a snapshot of all variables for expression evaluation.
	Vars() map[string]any

	Expr() *expressions.ExprEngine
	JQ() *expressions.GoJQEngine
}

// Executor runs a single node. Params arrive with all variable references
// already resolved; executors only decode and act.
type Executor interface {
	Kind() schema.NodeKind
	Execute(ctx context.Context, rt Runtime, params json.RawMessage) error
}

// Registry maps node kinds to executors. Control-flow kinds are interpreted
// by the walker and never appear here. Registries are injected wherever
// needed; there is no process-global instance.
type Registry struct {
	mu        sync.RWMutex
	executors map[schema.NodeKind]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[schema.NodeKind]Executor),
	}
}

// Register adds an executor. Returns an error on duplicate kind.
func (r *Registry) Register(exec Executor) error {
	if exec == nil {
		return schema.NewError(schema.ErrCodeValidation, "executor is nil")
	}
	kind := exec.Kind()
	if kind == "" {
		return schema.NewError(schema.ErrCodeValidation, "executor kind is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[kind]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "executor for kind %q already registered", kind)
	}
	r.executors[kind] = exec
	return nil
}

// Get retrieves the executor for a node kind.
func (r *Registry) Get(kind schema.NodeKind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executors[kind]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "no executor registered for node kind %q", kind)
	}
	return exec, nil
}

// Has checks whether a kind has an executor.
func (r *Registry) Has(kind schema.NodeKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[kind]
	return ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []schema.NodeKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]schema.NodeKind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// NewDefaultRegistry returns a registry with every built-in executor, wired
// with the service-node configuration (HTTP client, SMTP relay).
func NewDefaultRegistry(svc ServiceConfig) (*Registry, error) {
	r := NewRegistry()
	execs := []Executor{
		// Browser
		&openURLExecutor{}, &newTabExecutor{}, &switchTabExecutor{},
		&closeTabExecutor{}, &goBackExecutor{}, &goForwardExecutor{},
		&reloadPageExecutor{}, &getURLExecutor{}, &screenshotExecutor{},
		// Interaction
		&clickExecutor{kind: schema.KindClick},
		&clickExecutor{kind: schema.KindDoubleClick},
		&clickExecutor{kind: schema.KindRightClick},
		&hoverExecutor{}, &focusExecutor{}, &typeExecutor{},
		&clearInputExecutor{}, &selectOptionExecutor{}, &pressKeyExecutor{},
		&scrollExecutor{}, &scrollToElementExecutor{}, &dragAndDropExecutor{},
		&getAttributeExecutor{}, &getTextExecutor{}, &uploadExecutor{},
		// Wait
		&delayExecutor{}, &waitForSelectorExecutor{}, &waitForPageLoadExecutor{},
		// Data
		&variableExecutor{kind: schema.KindVariable},
		&variableExecutor{kind: schema.KindArray},
		&variableExecutor{kind: schema.KindObject},
		&mathExecutor{}, &stringExecutor{}, &jsonExecutor{}, &regexExecutor{},
		&randomizeExecutor{}, &sortExecutor{}, &filterExecutor{}, &mapExecutor{},
		&dateExecutor{},
		// Services
		newAPICallExecutor(svc), newWebhookExecutor(svc), newMailSendExecutor(svc),
	}
	for _, e := range execs {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// decodeParams unmarshals raw params into the kind-specific record.
func decodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid node params").WithCause(err)
	}
	return nil
}

// buildSelector turns the editor's selector record into a Playwright
// selector string.
func buildSelector(sel schema.Selector) (string, error) {
	if sel.SelectorValue == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "selector value is empty")
	}
	switch sel.SelectorType {
	case "", "css":
		return sel.SelectorValue, nil
	case "xpath":
		return "xpath=" + sel.SelectorValue, nil
	case "text":
		return "text=" + sel.SelectorValue, nil
	case "id":
		return "#" + sel.SelectorValue, nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown selector type %q", sel.SelectorType)
	}
}
