package engine

import (
	"github.com/soteldo/umbra/internal/browser"
	"github.com/soteldo/umbra/internal/expressions"
	"github.com/soteldo/umbra/internal/nodes"
	"github.com/soteldo/umbra/pkg/schema"
)

// Runtime is the node-facing view of one run: its variables, its browser
// session (nil for pure data workflows), and the expression engines.
type Runtime struct {
	session browser.TabSession
	vars    *VariableStore
	expr    *expressions.ExprEngine
	jq      *expressions.GoJQEngine
}

// NewRuntime assembles a run environment. session may be nil.
func NewRuntime(session browser.TabSession, vars *VariableStore, expr *expressions.ExprEngine, jq *expressions.GoJQEngine) *Runtime {
	return &Runtime{session: session, vars: vars, expr: expr, jq: jq}
}

func (r *Runtime) Session() (browser.TabSession, error) {
	if r.session == nil {
		return nil, schema.NewError(schema.ErrCodeBrowserUnavailable, "this run has no browser session")
	}
	return r.session, nil
}

func (r *Runtime) Driver() (browser.PageDriver, error) {
	session, err := r.Session()
	if err != nil {
		return nil, err
	}
	return session.Driver(), nil
}

func (r *Runtime) GetVar(name string) (any, bool) { return r.vars.Get(name) }

func (r *Runtime) SetVar(name string, value any) { r.vars.Set(name, value) }

func (r *Runtime) Vars() map[string]any { return r.vars.Snapshot() }

func (r *Runtime) Expr() *expressions.ExprEngine { return r.expr }

func (r *Runtime) JQ() *expressions.GoJQEngine { return r.jq }

// Variables exposes the underlying store for the interpreter.
func (r *Runtime) Variables() *VariableStore { return r.vars }

var _ nodes.Runtime = (*Runtime)(nil)
