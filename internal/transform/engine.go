// Package transform evaluates the filter and reshape expressions a transform
// step may carry in its parameters. Three engines are available: jq for
// record reshaping, CEL for boolean record filters, and Expr for derived
// field logic.
package transform

import "context"

// Engine evaluates one expression dialect.
type Engine interface {
	Name() string
	// Check compiles the expression without evaluating it. Used by strategy
	// validation to reject a broken filter before it ever runs.
	Check(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
