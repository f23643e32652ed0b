// Package expressions evaluates user expressions against diagram content.
// Three engines share one interface: expr for item queries, CEL for lint
// rules and jq for reshaping exported documents.
package expressions

import "context"

// Engine evaluates an expression against a variable map.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
