package schema

import "encoding/json"

// WorkflowGraph is the JSON-serializable workflow format produced by the
// editor: typed nodes plus directed, optionally labeled edges. The
// interpreter treats it as read-only input for the duration of a run.
type WorkflowGraph struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Nodes    []Node         `json:"nodes"`
	Edges    []Edge         `json:"edges"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Node is a single workflow node. Params is decoded into the kind-specific
// parameter record by the node executor (see the param types below).
type Node struct {
	ID     string          `json:"id"`
	Kind   NodeKind        `json:"kind"`
	Label  string          `json:"label,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Edge connects two nodes. Label selects the branch for condition, loop,
// try and retry nodes; linear nodes use a single unlabeled edge.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// Edge labels with interpreter-defined meaning.
const (
	EdgeNext    = ""        // linear continuation
	EdgeTrue    = "true"    // if: condition held
	EdgeFalse   = "false"   // if: condition did not hold
	EdgeDefault = "default" // switch: no case matched
	EdgeBody    = "body"    // loop/try/retry: guarded region entry
	EdgeDone    = "done"    // loop: exit after the final iteration
	EdgeCatch   = "catch"   // try: continuation after a captured failure
)

// NodeKind enumerates the closed set of node types.
type NodeKind string

// Control flow.
const (
	KindTrigger         NodeKind = "trigger"
	KindEnd             NodeKind = "end"
	KindReturn          NodeKind = "return"
	KindIf              NodeKind = "if"
	KindSwitch          NodeKind = "switch"
	KindLoop            NodeKind = "loop"
	KindForEach         NodeKind = "forEach"
	KindWhile           NodeKind = "while"
	KindBreak           NodeKind = "break"
	KindContinue        NodeKind = "continue"
	KindTry             NodeKind = "try"
	KindRetry           NodeKind = "retry"
	KindExecuteWorkflow NodeKind = "executeWorkflow"
)

// Browser.
const (
	KindOpenURL    NodeKind = "openURL"
	KindNewTab     NodeKind = "newTab"
	KindSwitchTab  NodeKind = "switchTab"
	KindCloseTab   NodeKind = "closeTab"
	KindGoBack     NodeKind = "goBack"
	KindGoForward  NodeKind = "goForward"
	KindReloadPage NodeKind = "reloadPage"
	KindGetURL     NodeKind = "getURL"
	KindScreenshot NodeKind = "screenshot"
)

// Web interaction.
const (
	KindClick           NodeKind = "click"
	KindDoubleClick     NodeKind = "doubleClick"
	KindRightClick      NodeKind = "rightClick"
	KindHover           NodeKind = "hover"
	KindFocus           NodeKind = "focus"
	KindType            NodeKind = "type"
	KindClearInput      NodeKind = "clearInput"
	KindSelectOption    NodeKind = "selectOption"
	KindPressKey        NodeKind = "pressKey"
	KindScroll          NodeKind = "scroll"
	KindScrollToElement NodeKind = "scrollToElement"
	KindDragAndDrop     NodeKind = "dragAndDrop"
	KindGetAttribute    NodeKind = "getAttribute"
	KindGetText         NodeKind = "getText"
	KindUpload          NodeKind = "upload"
)

// Wait.
const (
	KindDelay           NodeKind = "delay"
	KindWaitForSelector NodeKind = "waitForSelector"
	KindWaitForPageLoad NodeKind = "waitForPageLoad"
)

// Data.
const (
	KindVariable  NodeKind = "variable"
	KindArray     NodeKind = "array"
	KindObject    NodeKind = "object"
	KindMath      NodeKind = "math"
	KindString    NodeKind = "string"
	KindJSON      NodeKind = "json"
	KindRegex     NodeKind = "regex"
	KindRandomize NodeKind = "randomize"
	KindSort      NodeKind = "sort"
	KindFilter    NodeKind = "filter"
	KindMap       NodeKind = "map"
	KindDate      NodeKind = "date"
)

// Online services.
const (
	KindAPICall  NodeKind = "apiCall"
	KindWebhook  NodeKind = "webhook"
	KindMailSend NodeKind = "mailSend"
)

// AllKinds lists every node kind the interpreter understands.
var AllKinds = []NodeKind{
	KindTrigger, KindEnd, KindReturn, KindIf, KindSwitch, KindLoop,
	KindForEach, KindWhile, KindBreak, KindContinue, KindTry, KindRetry,
	KindExecuteWorkflow,
	KindOpenURL, KindNewTab, KindSwitchTab, KindCloseTab, KindGoBack,
	KindGoForward, KindReloadPage, KindGetURL, KindScreenshot,
	KindClick, KindDoubleClick, KindRightClick, KindHover, KindFocus,
	KindType, KindClearInput, KindSelectOption, KindPressKey, KindScroll,
	KindScrollToElement, KindDragAndDrop, KindGetAttribute, KindGetText,
	KindUpload,
	KindDelay, KindWaitForSelector, KindWaitForPageLoad,
	KindVariable, KindArray, KindObject, KindMath, KindString, KindJSON,
	KindRegex, KindRandomize, KindSort, KindFilter, KindMap, KindDate,
	KindAPICall, KindWebhook, KindMailSend,
}

// KnownKind reports whether k is part of the closed node-kind set.
func KnownKind(k NodeKind) bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// NodeByID returns the node with the given ID, or nil.
func (g *WorkflowGraph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// TriggerNode returns the graph's trigger node, or nil if absent.
func (g *WorkflowGraph) TriggerNode() *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Kind == KindTrigger {
			return &g.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdges returns all edges leaving the given node, in declaration order.
func (g *WorkflowGraph) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EdgeWithLabel returns the first outgoing edge of nodeID carrying the given
// label, or nil if no such edge exists.
func (g *WorkflowGraph) EdgeWithLabel(nodeID, label string) *Edge {
	for i := range g.Edges {
		if g.Edges[i].Source == nodeID && g.Edges[i].Label == label {
			return &g.Edges[i]
		}
	}
	return nil
}

// --- Parameter records ---
//
// Every parameter that the editor can bind to a variable carries a companion
// *VariableRef field. A non-empty ref overrides the literal; resolution
// happens once, uniformly, before the node executor runs.

// WaitWindow is the randomized post-action delay shared by interactive,
// navigation and service nodes. Milliseconds; MaxWait of 0 disables the delay.
type WaitWindow struct {
	MinWait int `json:"minWait,omitempty"`
	MaxWait int `json:"maxWait,omitempty"`
}

// Selector identifies a page element. SelectorType is "css" or "xpath".
type Selector struct {
	SelectorType             string `json:"selectorType,omitempty"`
	SelectorValue            string `json:"selectorValue,omitempty"`
	SelectorValueVariableRef string `json:"selectorValueVariableRef,omitempty"`
	Timeout                  int    `json:"timeout,omitempty"` // ms
}

// ReturnParams configures a return node.
type ReturnParams struct {
	Value            any    `json:"value,omitempty"`
	ValueVariableRef string `json:"valueVariableRef,omitempty"`
}

// IfParams configures an if node. Condition is an expression over the run's
// variables, e.g. `count > 10`.
type IfParams struct {
	Condition            string `json:"condition"`
	ConditionVariableRef string `json:"conditionVariableRef,omitempty"`
}

// SwitchParams configures a switch node. The matched value selects the
// outgoing edge whose label equals the value's string form.
type SwitchParams struct {
	Value            any    `json:"value,omitempty"`
	ValueVariableRef string `json:"valueVariableRef,omitempty"`
}

// LoopParams configures a counted loop. LoopVariable receives the current
// iteration index inside the body.
type LoopParams struct {
	Times            int    `json:"times"`
	TimesVariableRef string `json:"timesVariableRef,omitempty"`
	LoopVariable     string `json:"loopVariable,omitempty"`
}

// ForEachParams configures iteration over a list variable.
type ForEachParams struct {
	Array            any    `json:"array,omitempty"`
	ArrayVariableRef string `json:"arrayVariableRef,omitempty"`
	ItemVariable     string `json:"itemVariable,omitempty"`
	IndexVariable    string `json:"indexVariable,omitempty"`
}

// WhileParams configures a condition-bound loop.
type WhileParams struct {
	Condition            string `json:"condition"`
	ConditionVariableRef string `json:"conditionVariableRef,omitempty"`
	MaxIterations        int    `json:"maxIterations,omitempty"`
}

// TryParams configures a try node. ErrorVar receives the captured error
// message when the guarded region fails.
type TryParams struct {
	ErrorVar string `json:"errorVar,omitempty"`
}

// RetryParams configures a retry node guarding its body sub-walk.
type RetryParams struct {
	Times            int    `json:"times"`
	TimesVariableRef string `json:"timesVariableRef,omitempty"`
	Delay            int    `json:"delay,omitempty"` // ms between attempts
}

// ExecuteWorkflowParams configures a sub-workflow call. The child runs on the
// same session and shares the caller's variable store.
type ExecuteWorkflowParams struct {
	WorkflowID            string `json:"workflowId"`
	WorkflowIDVariableRef string `json:"workflowIdVariableRef,omitempty"`
}

// OpenURLParams configures page navigation.
type OpenURLParams struct {
	URL            string `json:"url"`
	URLVariableRef string `json:"urlVariableRef,omitempty"`
	Timeout        int    `json:"timeout,omitempty"`
	WaitWindow
}

// SwitchTabParams selects a tab by index.
type SwitchTabParams struct {
	TabIndex            int    `json:"tabIndex"`
	TabIndexVariableRef string `json:"tabIndexVariableRef,omitempty"`
	WaitWindow
}

// TabParams covers newTab, closeTab, goBack, goForward and reloadPage.
type TabParams struct {
	WaitWindow
}

// GetURLParams stores the current URL into ResultVar.
type GetURLParams struct {
	ResultVar string `json:"resultVar"`
}

// ScreenshotParams captures the page into a file.
type ScreenshotParams struct {
	Path            string `json:"path"`
	PathVariableRef string `json:"pathVariableRef,omitempty"`
	FullPage        bool   `json:"fullPage,omitempty"`
	WaitWindow
}

// ClickParams configures click, doubleClick and rightClick nodes.
type ClickParams struct {
	Selector
	ClickType string `json:"clickType,omitempty"` // left | right | middle
	WaitWindow
}

// HoverParams configures hover, focus, clearInput and scrollToElement nodes.
type HoverParams struct {
	Selector
	WaitWindow
}

// TypeParams writes text into an input.
type TypeParams struct {
	Selector
	Text            string `json:"text,omitempty"`
	TextVariableRef string `json:"textVariableRef,omitempty"`
	Delay           int    `json:"delay,omitempty"` // per-keystroke ms
	WaitWindow
}

// SelectOptionParams picks a dropdown option by value.
type SelectOptionParams struct {
	Selector
	Value            string `json:"value,omitempty"`
	ValueVariableRef string `json:"valueVariableRef,omitempty"`
	WaitWindow
}

// PressKeyParams presses a key, optionally with a modifier.
type PressKeyParams struct {
	Key                 string `json:"key"`
	KeyVariableRef      string `json:"keyVariableRef,omitempty"`
	Modifier            string `json:"modifier,omitempty"`
	ModifierVariableRef string `json:"modifierVariableRef,omitempty"`
	WaitWindow
}

// ScrollParams scrolls the page by a pixel amount.
type ScrollParams struct {
	Direction            string `json:"direction,omitempty"` // up | down
	DirectionVariableRef string `json:"directionVariableRef,omitempty"`
	Amount               int    `json:"amount,omitempty"`
	AmountVariableRef    string `json:"amountVariableRef,omitempty"`
	WaitWindow
}

// DragAndDropParams drags one element onto another.
type DragAndDropParams struct {
	SourceSelectorValue            string `json:"sourceSelectorValue"`
	SourceSelectorValueVariableRef string `json:"sourceSelectorValueVariableRef,omitempty"`
	TargetSelectorValue            string `json:"targetSelectorValue"`
	TargetSelectorValueVariableRef string `json:"targetSelectorValueVariableRef,omitempty"`
	Timeout                        int    `json:"timeout,omitempty"`
	WaitWindow
}

// GetAttributeParams reads an element attribute into ResultVar.
type GetAttributeParams struct {
	Selector
	Attribute string `json:"attribute"`
	ResultVar string `json:"resultVar"`
	WaitWindow
}

// GetTextParams reads an element's text content into ResultVar.
type GetTextParams struct {
	Selector
	ResultVar string `json:"resultVar"`
	WaitWindow
}

// UploadParams sets a file input's files.
type UploadParams struct {
	Selector
	FilePath            string `json:"filePath"`
	FilePathVariableRef string `json:"filePathVariableRef,omitempty"`
	WaitWindow
}

// DelayParams pauses the run for a fixed duration.
type DelayParams struct {
	Duration            int    `json:"duration"` // ms
	DurationVariableRef string `json:"durationVariableRef,omitempty"`
}

// WaitForSelectorParams waits for an element to appear.
type WaitForSelectorParams struct {
	Selector
	TimeoutVariableRef string `json:"timeoutVariableRef,omitempty"`
}

// WaitForPageLoadParams waits for the load event.
type WaitForPageLoadParams struct {
	Timeout            int    `json:"timeout,omitempty"`
	TimeoutVariableRef string `json:"timeoutVariableRef,omitempty"`
}

// VariableParams declares or updates a run variable. Shared by the variable,
// array and object nodes; the kind only constrains what the editor offers.
type VariableParams struct {
	Name             string `json:"name"`
	Value            any    `json:"value,omitempty"`
	ValueVariableRef string `json:"valueVariableRef,omitempty"`
}

// MathParams applies an arithmetic operation over Operands.
type MathParams struct {
	Operation           string `json:"operation"` // add | subtract | multiply | divide | mod
	Operands            []any  `json:"operands,omitempty"`
	OperandsVariableRef string `json:"operandsVariableRef,omitempty"`
	ResultVar           string `json:"resultVar"`
}

// StringParams applies a string operation over Strings.
type StringParams struct {
	Operation          string   `json:"operation"` // concat | upper | lower | trim | split | replace
	Strings            []string `json:"strings,omitempty"`
	StringsVariableRef string   `json:"stringsVariableRef,omitempty"`
	Separator          string   `json:"separator,omitempty"`
	Search             string   `json:"search,omitempty"`
	Replacement        string   `json:"replacement,omitempty"`
	ResultVar          string   `json:"resultVar"`
}

// JSONParams parses, stringifies or queries JSON data. Query uses jq syntax.
type JSONParams struct {
	Operation       string `json:"operation"` // parse | stringify | query
	Data            any    `json:"data,omitempty"`
	DataVariableRef string `json:"dataVariableRef,omitempty"`
	Query           string `json:"query,omitempty"`
	ResultVar       string `json:"resultVar"`
}

// RegexParams runs a regular expression over text.
type RegexParams struct {
	Pattern         string `json:"pattern"`
	Text            string `json:"text,omitempty"`
	TextVariableRef string `json:"textVariableRef,omitempty"`
	ResultVar       string `json:"resultVar"`
}

// RandomizeParams produces a random value.
type RandomizeParams struct {
	Type           string `json:"type,omitempty"` // number | string
	Min            int    `json:"min,omitempty"`
	MinVariableRef string `json:"minVariableRef,omitempty"`
	Max            int    `json:"max,omitempty"`
	MaxVariableRef string `json:"maxVariableRef,omitempty"`
	Length         int    `json:"length,omitempty"`
	ResultVar      string `json:"resultVar"`
}

// SortParams orders a list variable.
type SortParams struct {
	Array            any    `json:"array,omitempty"`
	ArrayVariableRef string `json:"arrayVariableRef,omitempty"`
	Order            string `json:"order,omitempty"` // ascending | descending
	ResultVar        string `json:"resultVar"`
}

// FilterParams keeps list items for which Condition holds; the item is bound
// as `item` (and its index as `index`) while evaluating.
type FilterParams struct {
	Array            any    `json:"array,omitempty"`
	ArrayVariableRef string `json:"arrayVariableRef,omitempty"`
	Condition        string `json:"condition"`
	ResultVar        string `json:"resultVar"`
}

// MapParams transforms each list item via Operation, same binding as filter.
type MapParams struct {
	Array            any    `json:"array,omitempty"`
	ArrayVariableRef string `json:"arrayVariableRef,omitempty"`
	Operation        string `json:"operation"`
	ResultVar        string `json:"resultVar"`
}

// DateParams produces date values/strings.
type DateParams struct {
	Operation string `json:"operation"` // now | timestamp | format
	Layout    string `json:"layout,omitempty"`
	ResultVar string `json:"resultVar"`
}

// APICallParams performs an HTTP request.
type APICallParams struct {
	URL                string         `json:"url"`
	URLVariableRef     string         `json:"urlVariableRef,omitempty"`
	Method             string         `json:"method,omitempty"`
	MethodVariableRef  string         `json:"methodVariableRef,omitempty"`
	Headers            map[string]any `json:"headers,omitempty"`
	HeadersVariableRef string         `json:"headersVariableRef,omitempty"`
	Body               any            `json:"body,omitempty"`
	BodyVariableRef    string         `json:"bodyVariableRef,omitempty"`
	Timeout            int            `json:"timeout,omitempty"`
	ResultVar          string         `json:"resultVar,omitempty"`
	WaitWindow
}

// WebhookParams posts a JSON payload to a URL.
type WebhookParams struct {
	URL                string `json:"url"`
	URLVariableRef     string `json:"urlVariableRef,omitempty"`
	Payload            any    `json:"payload,omitempty"`
	PayloadVariableRef string `json:"payloadVariableRef,omitempty"`
	Timeout            int    `json:"timeout,omitempty"`
	ResultVar          string `json:"resultVar,omitempty"`
	WaitWindow
}

// MailSendParams sends an email through the configured SMTP relay.
type MailSendParams struct {
	To                 string `json:"to"`
	ToVariableRef      string `json:"toVariableRef,omitempty"`
	Subject            string `json:"subject,omitempty"`
	SubjectVariableRef string `json:"subjectVariableRef,omitempty"`
	Body               string `json:"body,omitempty"`
	BodyVariableRef    string `json:"bodyVariableRef,omitempty"`
	WaitWindow
}
