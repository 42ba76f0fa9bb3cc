package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteldo/umbra/pkg/schema"
)

func TestReachabilityAcceptsConnectedGraph(t *testing.T) {
	result := validateReachability(linearGraph())
	assert.Empty(t, result.Warnings)
}

func TestReachabilityWarnsOnOrphanedNodes(t *testing.T) {
	g := linearGraph()
	g.Nodes = append(g.Nodes,
		gnode("island", schema.KindReloadPage),
		gnode("island2", schema.KindScreenshot),
	)
	g.Edges = append(g.Edges, gedge("island", "island2", ""))

	result := validateReachability(g)
	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0].Message, `"island"`)
	assert.Contains(t, result.Warnings[1].Message, `"island2"`)
}

func TestReachabilityFollowsBranchEdges(t *testing.T) {
	g := &schema.WorkflowGraph{
		Nodes: []schema.Node{
			gnode("start", schema.KindTrigger),
			gnode("branch", schema.KindIf),
			gnode("yes", schema.KindReloadPage),
			gnode("no", schema.KindScreenshot),
		},
		Edges: []schema.Edge{
			gedge("start", "branch", ""),
			gedge("branch", "yes", schema.EdgeTrue),
			gedge("branch", "no", schema.EdgeFalse),
		},
	}

	result := validateReachability(g)
	assert.Empty(t, result.Warnings)
}

func TestReachabilityToleratesLoopBackEdges(t *testing.T) {
	g := &schema.WorkflowGraph{
		Nodes: []schema.Node{
			gnode("start", schema.KindTrigger),
			gnode("lp", schema.KindWhile),
			gnode("body", schema.KindReloadPage),
			gnode("stop", schema.KindEnd),
		},
		Edges: []schema.Edge{
			gedge("start", "lp", ""),
			gedge("lp", "body", schema.EdgeBody),
			gedge("body", "lp", ""),
			gedge("lp", "stop", schema.EdgeDone),
		},
	}

	result := validateReachability(g)
	assert.Empty(t, result.Warnings)
}
