package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soteldo/umbra/pkg/schema"
)

func TestRenderMermaidLinearGraph(t *testing.T) {
	g := &schema.WorkflowGraph{
		Name: "login flow",
		Nodes: []schema.Node{
			{ID: "start", Kind: schema.KindTrigger, Label: "Start"},
			{ID: "open", Kind: schema.KindOpenURL, Label: "Open login page"},
			{ID: "stop", Kind: schema.KindEnd, Label: "Done"},
		},
		Edges: []schema.Edge{
			{Source: "start", Target: "open"},
			{Source: "open", Target: "stop"},
		},
	}

	out := RenderMermaid(g)

	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "%% login flow")
	assert.Contains(t, out, `start(("Start"))`)
	assert.Contains(t, out, `open["Open login page"]`)
	assert.Contains(t, out, `stop(("Done"))`)
	assert.Contains(t, out, "start --> open")
	assert.Contains(t, out, "open --> stop")
}

func TestRenderMermaidBranchLabels(t *testing.T) {
	g := &schema.WorkflowGraph{
		Nodes: []schema.Node{
			{ID: "start", Kind: schema.KindTrigger},
			{ID: "check", Kind: schema.KindIf, Label: "Logged in?"},
			{ID: "yes", Kind: schema.KindEnd},
			{ID: "no", Kind: schema.KindEnd},
		},
		Edges: []schema.Edge{
			{Source: "start", Target: "check"},
			{Source: "check", Target: "yes", Label: schema.EdgeTrue},
			{Source: "check", Target: "no", Label: schema.EdgeFalse},
		},
	}

	out := RenderMermaid(g)

	assert.Contains(t, out, `check{"Logged in?"}`)
	assert.Contains(t, out, "check -->|true| yes")
	assert.Contains(t, out, "check -->|false| no")
}

func TestRenderMermaidShapesPerKind(t *testing.T) {
	g := &schema.WorkflowGraph{
		Nodes: []schema.Node{
			{ID: "start", Kind: schema.KindTrigger},
			{ID: "each", Kind: schema.KindForEach},
			{ID: "guard", Kind: schema.KindTry},
			{ID: "pause", Kind: schema.KindDelay},
		},
		Edges: []schema.Edge{
			{Source: "start", Target: "each"},
		},
	}

	out := RenderMermaid(g)

	assert.Contains(t, out, `each[["forEach"]]`)
	assert.Contains(t, out, `guard{{"try"}}`)
	assert.Contains(t, out, `pause(["delay"])`)
}

func TestRenderMermaidSanitizesIDs(t *testing.T) {
	g := &schema.WorkflowGraph{
		Nodes: []schema.Node{
			{ID: "my-node.1", Kind: schema.KindClick},
			{ID: "other node", Kind: schema.KindEnd},
		},
		Edges: []schema.Edge{
			{Source: "my-node.1", Target: "other node"},
		},
	}

	out := RenderMermaid(g)

	assert.Contains(t, out, "my_node_1 --> other_node")
	assert.NotContains(t, out, "my-node.1 -->")
}
