package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/soteldo/umbra/internal/logging"
	"github.com/soteldo/umbra/internal/nodes"
	"github.com/soteldo/umbra/pkg/schema"
)

const (
	// DefaultMaxCallDepth bounds executeWorkflow nesting.
	DefaultMaxCallDepth = 32
	// DefaultMaxIterations bounds loop, forEach and while bodies.
	DefaultMaxIterations = 10000
)

// WorkflowResolver loads sub-workflow graphs for executeWorkflow nodes.
type WorkflowResolver interface {
	ResolveWorkflow(ctx context.Context, workflowID string) (*schema.WorkflowGraph, error)
}

// EventSink receives node-level run events. Implementations must be cheap;
// the interpreter calls them inline.
type EventSink interface {
	NodeEvent(ctx context.Context, nodeID, eventType string, payload map[string]any)
}

// Node event types emitted during a walk.
const (
	NodeEventStarted   = "node.started"
	NodeEventCompleted = "node.completed"
	NodeEventFailed    = "node.failed"
	NodeEventRetrying  = "node.retrying"
)

// IsRetryableError reports whether a retry node may re-attempt after err.
// Unstructured errors are treated as transient.
func IsRetryableError(err error) bool {
	var ue *schema.UmbraError
	if errors.As(err, &ue) {
		return ue.IsRetryable()
	}
	return true
}

// walk signals bubble loop/run termination up through nested sub-walks.
type signal int

const (
	signalNone signal = iota
	signalBreak
	signalContinue
	signalEnd
	signalReturn
)

// Interpreter walks a workflow graph node by node. Control-flow kinds are
// handled here; everything else dispatches to a registered executor.
// An Interpreter is stateless across runs and safe for concurrent use.
type Interpreter struct {
	registry  *nodes.Registry
	workflows WorkflowResolver
	logger    *slog.Logger

	maxDepth      int
	maxIterations int

	// sleep is swappable in tests; defaults to a ctx-aware time.Sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// InterpreterOption customizes an Interpreter.
type InterpreterOption func(*Interpreter)

// WithWorkflowResolver enables executeWorkflow nodes.
func WithWorkflowResolver(r WorkflowResolver) InterpreterOption {
	return func(in *Interpreter) { in.workflows = r }
}

// WithMaxCallDepth overrides the sub-workflow nesting bound.
func WithMaxCallDepth(depth int) InterpreterOption {
	return func(in *Interpreter) { in.maxDepth = depth }
}

// WithMaxIterations overrides the loop guard.
func WithMaxIterations(n int) InterpreterOption {
	return func(in *Interpreter) { in.maxIterations = n }
}

// NewInterpreter creates an interpreter over the given executor registry.
func NewInterpreter(registry *nodes.Registry, logger *slog.Logger, opts ...InterpreterOption) *Interpreter {
	in := &Interpreter{
		registry:      registry,
		logger:        logger,
		maxDepth:      DefaultMaxCallDepth,
		maxIterations: DefaultMaxIterations,
		sleep:         sleepCtx,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return schema.NewError(schema.ErrCodeCancelled, "run cancelled").WithCause(ctx.Err())
	}
}

// Result carries the outcome of one graph walk.
type Result struct {
	// ReturnValue is set when the walk ended at a return node.
	ReturnValue any
	// Variables is the final state of the run's variable store.
	Variables map[string]any
}

// walkState is the per-run mutable state threaded through the walk.
type walkState struct {
	graph       *schema.WorkflowGraph
	rt          *Runtime
	sink        EventSink
	depth       int
	returnValue any
	returned    bool
}

// Execute walks graph on the given runtime. The walk starts at the trigger
// node and ends at an end node, a return node, or the last node of the chain.
func (in *Interpreter) Execute(ctx context.Context, graph *schema.WorkflowGraph, rt *Runtime, sink EventSink) (*Result, error) {
	if err := schema.ValidateStructure(graph); err != nil {
		return nil, err
	}
	trigger := graph.TriggerNode()

	st := &walkState{graph: graph, rt: rt, sink: sink}
	if _, err := in.walk(ctx, st, trigger.ID, 0); err != nil {
		return nil, err
	}
	return &Result{ReturnValue: st.returnValue, Variables: rt.Variables().Snapshot()}, nil
}

// executeSubgraph runs a child graph on the caller's state (executeWorkflow).
func (in *Interpreter) executeSubgraph(ctx context.Context, st *walkState, graph *schema.WorkflowGraph) error {
	trigger := graph.TriggerNode()
	if trigger == nil {
		return schema.NewError(schema.ErrCodeValidation, "sub-workflow has no trigger node")
	}
	child := &walkState{graph: graph, rt: st.rt, sink: st.sink, depth: st.depth + 1}
	_, err := in.walk(ctx, child, trigger.ID, 0)
	return err
}

// walk runs the chain starting at startID. loopDepth counts enclosing loop
// bodies so break/continue outside a loop can be rejected.
func (in *Interpreter) walk(ctx context.Context, st *walkState, startID string, loopDepth int) (signal, error) {
	currentID := startID

	for currentID != "" {
		if err := ctx.Err(); err != nil {
			return signalNone, schema.NewError(schema.ErrCodeCancelled, "run cancelled").WithCause(err)
		}

		node := st.graph.NodeByID(currentID)
		if node == nil {
			return signalNone, schema.NewErrorf(schema.ErrCodeValidation, "edge targets unknown node %q", currentID)
		}
		ctx := logging.WithNodeID(ctx, node.ID)

		switch node.Kind {
		case schema.KindTrigger:
			// Entry marker only.

		case schema.KindEnd:
			return signalEnd, nil

		case schema.KindReturn:
			var p schema.ReturnParams
			if err := in.resolveInto(node, st.rt, &p); err != nil {
				return signalNone, err
			}
			st.returnValue = p.Value
			st.returned = true
			return signalReturn, nil

		case schema.KindBreak:
			if loopDepth == 0 {
				return signalNone, schema.NewError(schema.ErrCodeInvalidControlFlow,
					"break outside a loop").WithNode(node.ID)
			}
			return signalBreak, nil

		case schema.KindContinue:
			if loopDepth == 0 {
				return signalNone, schema.NewError(schema.ErrCodeInvalidControlFlow,
					"continue outside a loop").WithNode(node.ID)
			}
			return signalContinue, nil

		case schema.KindIf:
			next, err := in.runIf(ctx, st, node)
			if err != nil {
				return signalNone, err
			}
			currentID = next
			continue

		case schema.KindSwitch:
			next, err := in.runSwitch(ctx, st, node)
			if err != nil {
				return signalNone, err
			}
			currentID = next
			continue

		case schema.KindLoop:
			if sig, err := in.runLoop(ctx, st, node, loopDepth); sig != signalNone || err != nil {
				return sig, err
			}
			currentID = in.nextNode(st, node.ID, schema.EdgeDone)
			continue

		case schema.KindForEach:
			if sig, err := in.runForEach(ctx, st, node, loopDepth); sig != signalNone || err != nil {
				return sig, err
			}
			currentID = in.nextNode(st, node.ID, schema.EdgeDone)
			continue

		case schema.KindWhile:
			if sig, err := in.runWhile(ctx, st, node, loopDepth); sig != signalNone || err != nil {
				return sig, err
			}
			currentID = in.nextNode(st, node.ID, schema.EdgeDone)
			continue

		case schema.KindTry:
			if sig, err := in.runTry(ctx, st, node, loopDepth); sig != signalNone || err != nil {
				return sig, err
			}
			// runTry follows the catch edge itself; the next edge is normal.

		case schema.KindRetry:
			if sig, err := in.runRetry(ctx, st, node, loopDepth); sig != signalNone || err != nil {
				return sig, err
			}

		case schema.KindExecuteWorkflow:
			if err := in.runSubWorkflow(ctx, st, node); err != nil {
				return signalNone, err
			}
			if st.returned {
				return signalReturn, nil
			}

		default:
			if err := in.runAction(ctx, st, node); err != nil {
				return signalNone, err
			}
		}

		currentID = in.nextNode(st, node.ID, schema.EdgeNext)
	}
	return signalNone, nil
}

// nextNode returns the target of the first outgoing edge with the given
// label, or "" if there is none.
func (in *Interpreter) nextNode(st *walkState, nodeID, label string) string {
	if edge := st.graph.EdgeWithLabel(nodeID, label); edge != nil {
		return edge.Target
	}
	return ""
}

// resolveInto resolves variable references in node params and decodes them.
func (in *Interpreter) resolveInto(node *schema.Node, rt *Runtime, out any) error {
	resolved, err := ResolveParams(node.Params, rt.Variables())
	if err != nil {
		return attachNode(err, node.ID)
	}
	if len(resolved) == 0 {
		return nil
	}
	if err := json.Unmarshal(resolved, out); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid node params").
			WithCause(err).WithNode(node.ID)
	}
	return nil
}

// --- Branching ---

func (in *Interpreter) runIf(ctx context.Context, st *walkState, node *schema.Node) (string, error) {
	var p schema.IfParams
	if err := in.resolveInto(node, st.rt, &p); err != nil {
		return "", err
	}
	if p.Condition == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "if node requires a condition").WithNode(node.ID)
	}

	hold, err := st.rt.Expr().EvaluateBool(ctx, p.Condition, st.rt.Vars())
	if err != nil {
		return "", attachNode(err, node.ID)
	}

	label := schema.EdgeFalse
	if hold {
		label = schema.EdgeTrue
	}
	return in.nextNode(st, node.ID, label), nil
}

func (in *Interpreter) runSwitch(ctx context.Context, st *walkState, node *schema.Node) (string, error) {
	var p schema.SwitchParams
	if err := in.resolveInto(node, st.rt, &p); err != nil {
		return "", err
	}

	matched := fmt.Sprint(normalizeSwitchValue(p.Value))
	for _, edge := range st.graph.OutgoingEdges(node.ID) {
		if edge.Label != "" && edge.Label != schema.EdgeDefault && edge.Label == matched {
			return edge.Target, nil
		}
	}
	return in.nextNode(st, node.ID, schema.EdgeDefault), nil
}

// normalizeSwitchValue renders whole floats as integers so a JSON-decoded 3
// matches an edge labeled "3".
func normalizeSwitchValue(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

// --- Loops ---

func (in *Interpreter) runLoop(ctx context.Context, st *walkState, node *schema.Node, loopDepth int) (signal, error) {
	var p schema.LoopParams
	if err := in.resolveInto(node, st.rt, &p); err != nil {
		return signalNone, err
	}
	if p.Times < 0 || p.Times > in.maxIterations {
		return signalNone, schema.NewErrorf(schema.ErrCodeValidation,
			"loop count %d outside [0, %d]", p.Times, in.maxIterations).WithNode(node.ID)
	}

	loopVar := p.LoopVariable
	if loopVar == "" {
		loopVar = "index"
	}
	body := in.nextNode(st, node.ID, schema.EdgeBody)

	for i := 0; i < p.Times; i++ {
		st.rt.SetVar(loopVar, i)
		sig, err := in.runBody(ctx, st, body, loopDepth)
		if err != nil {
			return signalNone, err
		}
		if sig == signalBreak {
			break
		}
		if sig == signalEnd || sig == signalReturn {
			return sig, nil
		}
	}
	return signalNone, nil
}

func (in *Interpreter) runForEach(ctx context.Context, st *walkState, node *schema.Node, loopDepth int) (signal, error) {
	var p schema.ForEachParams
	if err := in.resolveInto(node, st.rt, &p); err != nil {
		return signalNone, err
	}
	items, ok := p.Array.([]any)
	if !ok {
		return signalNone, schema.NewErrorf(schema.ErrCodeValidation,
			"forEach expects a list, got %T", p.Array).WithNode(node.ID)
	}
	if len(items) > in.maxIterations {
		return signalNone, schema.NewErrorf(schema.ErrCodeExecution,
			"forEach over %d items exceeds the %d iteration guard", len(items), in.maxIterations).WithNode(node.ID)
	}

	itemVar := p.ItemVariable
	if itemVar == "" {
		itemVar = "item"
	}
	indexVar := p.IndexVariable
	if indexVar == "" {
		indexVar = "index"
	}
	body := in.nextNode(st, node.ID, schema.EdgeBody)

	for i, item := range items {
		st.rt.SetVar(itemVar, item)
		st.rt.SetVar(indexVar, i)
		sig, err := in.runBody(ctx, st, body, loopDepth)
		if err != nil {
			return signalNone, err
		}
		if sig == signalBreak {
			break
		}
		if sig == signalEnd || sig == signalReturn {
			return sig, nil
		}
	}
	return signalNone, nil
}

func (in *Interpreter) runWhile(ctx context.Context, st *walkState, node *schema.Node, loopDepth int) (signal, error) {
	var p schema.WhileParams
	if err := in.resolveInto(node, st.rt, &p); err != nil {
		return signalNone, err
	}
	if p.Condition == "" {
		return signalNone, schema.NewError(schema.ErrCodeValidation, "while node requires a condition").WithNode(node.ID)
	}
	limit := p.MaxIterations
	if limit <= 0 || limit > in.maxIterations {
		limit = in.maxIterations
	}
	body := in.nextNode(st, node.ID, schema.EdgeBody)

	for i := 0; ; i++ {
		if i >= limit {
			return signalNone, schema.NewErrorf(schema.ErrCodeExecution,
				"while exceeded %d iterations", limit).WithNode(node.ID)
		}
		hold, err := st.rt.Expr().EvaluateBool(ctx, p.Condition, st.rt.Vars())
		if err != nil {
			return signalNone, attachNode(err, node.ID)
		}
		if !hold {
			return signalNone, nil
		}

		sig, err := in.runBody(ctx, st, body, loopDepth)
		if err != nil {
			return signalNone, err
		}
		if sig == signalBreak {
			return signalNone, nil
		}
		if sig == signalEnd || sig == signalReturn {
			return sig, nil
		}
	}
}

// runBody walks a loop body sub-chain. An empty body is a no-op iteration.
func (in *Interpreter) runBody(ctx context.Context, st *walkState, bodyStart string, loopDepth int) (signal, error) {
	if bodyStart == "" {
		return signalNone, nil
	}
	return in.walk(ctx, st, bodyStart, loopDepth+1)
}

// --- Guarded regions ---

func (in *Interpreter) runTry(ctx context.Context, st *walkState, node *schema.Node, loopDepth int) (signal, error) {
	var p schema.TryParams
	if err := in.resolveInto(node, st.rt, &p); err != nil {
		return signalNone, err
	}
	body := in.nextNode(st, node.ID, schema.EdgeBody)
	if body == "" {
		return signalNone, nil
	}

	sig, err := in.walk(ctx, st, body, loopDepth)
	if err == nil {
		return sig, nil
	}

	catch := in.nextNode(st, node.ID, schema.EdgeCatch)
	if catch == "" {
		return signalNone, err
	}

	errorVar := p.ErrorVar
	if errorVar == "" {
		errorVar = "error"
	}
	st.rt.SetVar(errorVar, errorAsValue(err))
	in.logger.WarnContext(ctx, "try body failed, taking catch branch", "error", err)

	return in.walk(ctx, st, catch, loopDepth)
}

// errorAsValue renders a captured error for workflow consumption.
func errorAsValue(err error) map[string]any {
	var ue *schema.UmbraError
	if errors.As(err, &ue) {
		out := map[string]any{"code": ue.Code, "message": ue.Message}
		if ue.NodeID != "" {
			out["nodeId"] = ue.NodeID
		}
		return out
	}
	return map[string]any{"code": schema.ErrCodeExecution, "message": err.Error()}
}

func (in *Interpreter) runRetry(ctx context.Context, st *walkState, node *schema.Node, loopDepth int) (signal, error) {
	var p schema.RetryParams
	if err := in.resolveInto(node, st.rt, &p); err != nil {
		return signalNone, err
	}
	attempts := p.Times
	if attempts < 1 {
		attempts = 1
	}
	body := in.nextNode(st, node.ID, schema.EdgeBody)
	if body == "" {
		return signalNone, nil
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		sig, err := in.walk(ctx, st, body, loopDepth)
		if err == nil {
			return sig, nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return signalNone, err
		}
		if attempt == attempts {
			break
		}

		in.logger.WarnContext(ctx, "retry body failed",
			"attempt", attempt, "max_attempts", attempts, "error", err)
		in.emit(ctx, st, node.ID, NodeEventRetrying, map[string]any{
			"attempt": attempt, "maxAttempts": attempts, "error": err.Error(),
		})
		if p.Delay > 0 {
			if serr := in.sleep(ctx, time.Duration(p.Delay)*time.Millisecond); serr != nil {
				return signalNone, serr
			}
		}
	}
	return signalNone, schema.NewErrorf(schema.ErrCodeRetryExhausted,
		"all %d attempts failed", attempts).WithNode(node.ID).WithCause(lastErr)
}

// --- Sub-workflows ---

func (in *Interpreter) runSubWorkflow(ctx context.Context, st *walkState, node *schema.Node) error {
	var p schema.ExecuteWorkflowParams
	if err := in.resolveInto(node, st.rt, &p); err != nil {
		return err
	}
	if p.WorkflowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "executeWorkflow requires a workflowId").WithNode(node.ID)
	}
	if in.workflows == nil {
		return schema.NewError(schema.ErrCodeValidation, "no workflow resolver configured").WithNode(node.ID)
	}
	if st.depth+1 >= in.maxDepth {
		return schema.NewErrorf(schema.ErrCodeDepthExceeded,
			"sub-workflow nesting exceeds depth %d", in.maxDepth).WithNode(node.ID)
	}

	graph, err := in.workflows.ResolveWorkflow(ctx, p.WorkflowID)
	if err != nil {
		return attachNode(err, node.ID)
	}
	return in.executeSubgraph(ctx, st, graph)
}

// --- Action dispatch ---

func (in *Interpreter) runAction(ctx context.Context, st *walkState, node *schema.Node) error {
	if !schema.KnownKind(node.Kind) {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown node kind %q", node.Kind).WithNode(node.ID)
	}
	exec, err := in.registry.Get(node.Kind)
	if err != nil {
		return attachNode(err, node.ID)
	}

	resolved, err := ResolveParams(node.Params, st.rt.Variables())
	if err != nil {
		return attachNode(err, node.ID)
	}

	actionCtx := ctx
	var timing actionTiming
	if len(resolved) > 0 {
		// Best effort; kinds without timing fields just leave the zero value.
		_ = json.Unmarshal(resolved, &timing)
	}
	if timing.Timeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, time.Duration(timing.Timeout)*time.Millisecond)
		defer cancel()
	}

	in.emit(ctx, st, node.ID, NodeEventStarted, nil)
	in.logger.DebugContext(ctx, "executing node", "kind", node.Kind)

	if err := exec.Execute(actionCtx, st.rt, resolved); err != nil {
		err = attachNode(err, node.ID)
		in.emit(ctx, st, node.ID, NodeEventFailed, map[string]any{"error": err.Error()})
		return err
	}
	in.emit(ctx, st, node.ID, NodeEventCompleted, nil)

	return in.waitWindow(ctx, timing)
}

// actionTiming is the cross-kind probe for node timeout and the randomized
// post-action delay.
type actionTiming struct {
	Timeout int `json:"timeout"`
	MinWait int `json:"minWait"`
	MaxWait int `json:"maxWait"`
}

// waitWindow sleeps a random duration inside [MinWait, MaxWait] milliseconds.
func (in *Interpreter) waitWindow(ctx context.Context, t actionTiming) error {
	if t.MaxWait <= 0 || t.MaxWait < t.MinWait {
		return nil
	}
	min := t.MinWait
	if min < 0 {
		min = 0
	}
	wait := min
	if t.MaxWait > min {
		wait = min + rand.Intn(t.MaxWait-min+1)
	}
	if wait == 0 {
		return nil
	}
	return in.sleep(ctx, time.Duration(wait)*time.Millisecond)
}

func (in *Interpreter) emit(ctx context.Context, st *walkState, nodeID, eventType string, payload map[string]any) {
	if st.sink == nil {
		return
	}
	st.sink.NodeEvent(ctx, nodeID, eventType, payload)
}

// attachNode tags err with the failing node's ID. Unstructured errors are
// wrapped as NODE_FAILED.
func attachNode(err error, nodeID string) error {
	var ue *schema.UmbraError
	if errors.As(err, &ue) {
		if ue.NodeID == "" {
			ue.NodeID = nodeID
		}
		return ue
	}
	return schema.NewError(schema.ErrCodeNodeFailed, err.Error()).WithNode(nodeID).WithCause(err)
}
