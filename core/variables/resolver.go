// Package variables expands pool dimensions into the flat variable context
// formulas are evaluated against.
//
// Definitions are evaluated in ascending EvaluationOrder. A definition may
// read any dimension and any earlier definition, never a later one: the
// order is authored, not inferred.
package variables

import (
	"go.uber.org/zap"

	"pool-boq/core/formula"
	"pool-boq/core/types"
	"pool-boq/internal/logging"
	"pool-boq/internal/metrics"
)

// Resolve seeds a context with dims and evaluates defs in order. A failing
// definition resolves to 0 and resolution continues. A later definition that
// reuses a name overwrites it.
func Resolve(dims map[string]float64, defs []types.VariableDefinition) formula.Vars {
	return NewResolver(nil, nil).Resolve(dims, defs)
}

// Resolver is Resolve with logging and metrics attached
type Resolver struct {
	logger  *zap.Logger
	metrics metrics.Observer
}

// NewResolver creates a resolver. Both arguments may be nil.
func NewResolver(logger *zap.Logger, observer metrics.Observer) *Resolver {
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &Resolver{logger: logging.OrNop(logger), metrics: observer}
}

// Resolve builds the context. Values are identical to the package-level
// Resolve; definitions that fell back to 0 are logged at debug level.
func (r *Resolver) Resolve(dims map[string]float64, defs []types.VariableDefinition) formula.Vars {
	ctx := make(formula.Vars, len(dims)+len(defs))
	for k, v := range dims {
		ctx[k] = v
	}

	for _, def := range types.SortedVariables(defs) {
		v, err := formula.EvaluateStrict(def.Formula, ctx)
		if err != nil {
			r.fallback(def, err)
		}
		ctx[def.Name] = v
	}
	return ctx
}

// ResolveDimensions resolves against a dimension set
func (r *Resolver) ResolveDimensions(ds types.DimensionSet, defs []types.VariableDefinition) formula.Vars {
	return r.Resolve(ds.Vars(), defs)
}

// ResolveContext resolves into a typed Context. Unlike Resolve it refuses
// definitions that reuse a dimension or an earlier variable name, and the
// first formula error aborts resolution.
func (r *Resolver) ResolveContext(ds types.DimensionSet, defs []types.VariableDefinition) (*Context, error) {
	ctx, err := ContextFromDimensions(ds)
	if err != nil {
		return nil, err
	}
	for _, def := range types.SortedVariables(defs) {
		v, err := formula.EvaluateStrict(def.Formula, ctx)
		if err != nil {
			return nil, err
		}
		if err := ctx.Define(def.Name, v); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

func (r *Resolver) fallback(def types.VariableDefinition, err error) {
	r.logger.Debug("variable fell back to 0",
		zap.String("variable", def.Name),
		zap.String("formula", def.Formula),
		zap.Error(err),
	)
	r.metrics.FormulaFallback("variable")
}
