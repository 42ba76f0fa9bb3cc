package expressions

import "context"

// Engine evaluates expressions against a run's variable snapshot.
// Two implementations: Expr (conditions and math) and GoJQ (JSON transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
