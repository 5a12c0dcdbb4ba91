package transform

import (
	"context"

	"github.com/rendis/stratagem/pkg/schema"
)

// Parameter keys a transform step uses to carry its expression.
const (
	ParamFilter       = "filter"
	ParamFilterEngine = "filter_engine"
)

// DefaultEngine is used when a step names no dialect.
const DefaultEngine = "cel"

// Registry holds the available expression engines and applies a transform
// step's filter to records.
type Registry struct {
	engines map[string]Engine
}

// NewRegistry constructs a registry with all three engines.
func NewRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	r := &Registry{engines: map[string]Engine{}}
	for _, e := range []Engine{NewJQEngine(), celEngine, NewExprEngine()} {
		r.engines[e.Name()] = e
	}
	return r, nil
}

// Engine returns the named engine.
func (r *Registry) Engine(name string) (Engine, bool) {
	e, ok := r.engines[name]
	return e, ok
}

// StepFilter extracts the filter expression and dialect from a step's
// parameters. Returns ok=false when the step carries no filter.
func StepFilter(step *schema.Step) (expression, engine string, ok bool) {
	if step == nil || step.Parameters == nil {
		return "", "", false
	}
	expression, _ = step.Parameters[ParamFilter].(string)
	if expression == "" {
		return "", "", false
	}
	engine, _ = step.Parameters[ParamFilterEngine].(string)
	if engine == "" {
		engine = DefaultEngine
	}
	return expression, engine, true
}

// CheckStep compile-checks a step's filter expression, if any. Used during
// strategy validation so a broken filter surfaces as a validation issue
// instead of a runtime failure.
func (r *Registry) CheckStep(step *schema.Step) error {
	expression, engineName, ok := StepFilter(step)
	if !ok {
		return nil
	}
	engine, found := r.engines[engineName]
	if !found {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"unknown filter engine %q", engineName).WithStep(step.ID)
	}
	if err := engine.Check(expression); err != nil {
		if serr, isStratagem := err.(*schema.StratagemError); isStratagem {
			return serr.WithStep(step.ID)
		}
		return err
	}
	return nil
}

// FilterRecord evaluates a step's filter against one record. Steps without a
// filter pass everything through. The result must be truthy for the record
// to survive: a boolean is taken as-is, any other non-nil value passes.
func (r *Registry) FilterRecord(ctx context.Context, step *schema.Step, record map[string]any) (bool, error) {
	expression, engineName, ok := StepFilter(step)
	if !ok {
		return true, nil
	}
	engine, found := r.engines[engineName]
	if !found {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown filter engine %q", engineName).WithStep(step.ID)
	}

	out, err := engine.Evaluate(ctx, expression, map[string]any{
		"record": record,
		"step":   map[string]any{"id": step.ID, "record_type": step.RecordType},
		"params": step.Parameters,
	})
	if err != nil {
		return false, err
	}

	if b, isBool := out.(bool); isBool {
		return b, nil
	}
	return out != nil, nil
}
