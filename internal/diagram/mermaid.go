// Package diagram renders workflow graphs as Mermaid flowcharts for the
// editor's preview pane and for documentation.
package diagram

import (
	"fmt"
	"strings"

	"github.com/soteldo/umbra/pkg/schema"
)

// RenderMermaid renders a workflow graph as a Mermaid flowchart string.
func RenderMermaid(g *schema.WorkflowGraph) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	if g.Name != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", g.Name))
	}

	for i := range g.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(&g.Nodes[i])))
	}

	for _, edge := range g.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.Source), label, mermaidSafeID(edge.Target)))
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with a shape that hints
// at the node's role in the graph.
func mermaidNodeDef(node *schema.Node) string {
	id := mermaidSafeID(node.ID)
	label := node.Label
	if label == "" {
		label = string(node.Kind)
	}

	switch node.Kind {
	case schema.KindTrigger, schema.KindEnd, schema.KindReturn:
		return fmt.Sprintf("%s((%q))", id, label)
	case schema.KindIf, schema.KindSwitch:
		return fmt.Sprintf("%s{%q}", id, label)
	case schema.KindLoop, schema.KindForEach, schema.KindWhile:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case schema.KindTry, schema.KindRetry:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case schema.KindDelay, schema.KindWaitForSelector, schema.KindWaitForPageLoad:
		return fmt.Sprintf("%s([%q])", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}
