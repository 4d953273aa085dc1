package variables

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pool-boq/core/formula"
	"pool-boq/core/types"
	"pool-boq/internal/errors"
)

func rectDims() map[string]float64 {
	return map[string]float64{"length": 8, "width": 4, "depth": 1.5}
}

func TestResolveDependencyOrder(t *testing.T) {
	defs := []types.VariableDefinition{
		{Name: "surface", Formula: "length*width", EvaluationOrder: 1},
		{Name: "volume", Formula: "surface*depth", EvaluationOrder: 2},
	}

	ctx := Resolve(rectDims(), defs)
	assert.Equal(t, 32.0, ctx["surface"])
	assert.Equal(t, 48.0, ctx["volume"])
	assert.Equal(t, 8.0, ctx["length"], "dimensions are seeded into the context")
}

func TestResolveReversedOrderReadsZero(t *testing.T) {
	defs := []types.VariableDefinition{
		{Name: "surface", Formula: "length*width", EvaluationOrder: 2},
		{Name: "volume", Formula: "surface*depth", EvaluationOrder: 1},
	}

	ctx := Resolve(rectDims(), defs)
	assert.Equal(t, 32.0, ctx["surface"])
	assert.Equal(t, 0.0, ctx["volume"])
}

func TestResolveStableTies(t *testing.T) {
	defs := []types.VariableDefinition{
		{Name: "a", Formula: "1", EvaluationOrder: 5},
		{Name: "b", Formula: "a + 1", EvaluationOrder: 5},
		{Name: "c", Formula: "b + 1", EvaluationOrder: 5},
	}
	ctx := Resolve(nil, defs)
	assert.Equal(t, 3.0, ctx["c"])
}

func TestResolveFailSoftContinues(t *testing.T) {
	defs := []types.VariableDefinition{
		{Name: "broken", Formula: "length *", EvaluationOrder: 1},
		{Name: "blank", Formula: "", EvaluationOrder: 2},
		{Name: "missing", Formula: "nope + 1", EvaluationOrder: 3},
		{Name: "perimeter", Formula: "2 * (length + width)", EvaluationOrder: 4},
	}
	ctx := Resolve(rectDims(), defs)
	assert.Equal(t, 0.0, ctx["broken"])
	assert.Equal(t, 0.0, ctx["blank"])
	assert.Equal(t, 0.0, ctx["missing"])
	assert.Equal(t, 24.0, ctx["perimeter"])
}

func TestResolveDuplicateOverwrites(t *testing.T) {
	defs := []types.VariableDefinition{
		{Name: "surface", Formula: "length*width", EvaluationOrder: 1},
		{Name: "doubled", Formula: "surface*2", EvaluationOrder: 2},
		{Name: "surface", Formula: "1", EvaluationOrder: 3},
	}
	ctx := Resolve(rectDims(), defs)
	assert.Equal(t, 1.0, ctx["surface"])
	assert.Equal(t, 64.0, ctx["doubled"])
}

func TestResolveCaseInsensitiveReferences(t *testing.T) {
	defs := []types.VariableDefinition{
		{Name: "Surface", Formula: "LENGTH*Width", EvaluationOrder: 1},
		{Name: "volume", Formula: "surface*depth", EvaluationOrder: 2},
	}
	ctx := Resolve(rectDims(), defs)
	assert.Equal(t, 48.0, ctx["volume"])
}

func TestResolveDoesNotMutateInputs(t *testing.T) {
	dims := rectDims()
	defs := []types.VariableDefinition{
		{Name: "b", Formula: "1", EvaluationOrder: 2},
		{Name: "a", Formula: "2", EvaluationOrder: 1},
	}
	_ = Resolve(dims, defs)
	assert.Len(t, dims, 3)
	assert.Equal(t, "b", defs[0].Name)
}

type countingObserver struct {
	mu        sync.Mutex
	fallbacks map[string]int
}

func (o *countingObserver) PricingRun(string, time.Duration) {}
func (o *countingObserver) RepositoryFallback(string)        {}
func (o *countingObserver) FormulaFallback(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks[kind]++
}

func TestResolverCountsFallbacks(t *testing.T) {
	obs := &countingObserver{fallbacks: map[string]int{}}
	r := NewResolver(nil, obs)

	ctx := r.ResolveDimensions(types.NewDimensionSet(types.ShapeRectangular, rectDims()), []types.VariableDefinition{
		{Name: "ok", Formula: "length", EvaluationOrder: 1},
		{Name: "bad", Formula: "length +", EvaluationOrder: 2},
	})
	assert.Equal(t, 8.0, ctx["ok"])
	assert.Equal(t, 1, obs.fallbacks["variable"])
}

func TestResolveContext(t *testing.T) {
	ds := types.NewDimensionSet(types.ShapeRectangular, rectDims())
	r := NewResolver(nil, nil)

	ctx, err := r.ResolveContext(ds, []types.VariableDefinition{
		{Name: "surface", Formula: "length*width", EvaluationOrder: 1},
		{Name: "volume", Formula: "surface*depth", EvaluationOrder: 2},
	})
	require.NoError(t, err)
	v, ok := ctx.Lookup("VOLUME")
	require.True(t, ok)
	assert.Equal(t, 48.0, v)
	assert.Equal(t, []string{"depth", "length", "surface", "volume", "width"}, ctx.Names())

	_, err = r.ResolveContext(ds, []types.VariableDefinition{
		{Name: "volume", Formula: "surface*depth", EvaluationOrder: 1},
	})
	assert.True(t, errors.IsType(err, errors.TypeFormula))

	_, err = r.ResolveContext(ds, []types.VariableDefinition{
		{Name: "Depth", Formula: "2", EvaluationOrder: 1},
	})
	assert.True(t, errors.IsType(err, errors.TypeValidation))

	_, err = r.ResolveContext(types.NewDimensionSet(types.ShapeRectangular, map[string]float64{"length": 1}), nil)
	assert.True(t, errors.IsType(err, errors.TypeInput))
}

func TestContextDefine(t *testing.T) {
	ctx := NewContext(types.ShapeLShaped)

	require.NoError(t, ctx.SetDimension(types.DimLengthLA, 6))
	assert.Error(t, ctx.SetDimension(types.DimLength, 6), "length belongs to the rectangular shape")

	require.NoError(t, ctx.Define("surface", 10))
	assert.Error(t, ctx.Define("Surface", 11), "redefinition under another casing")
	assert.Error(t, ctx.Define("width_lb", 1), "reserved for this shape")
	assert.Error(t, ctx.Define("length", 1), "reserved for another shape")
	assert.Error(t, ctx.Define("", 1))

	v, ok := ctx.Lookup("SURFACE")
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)
	assert.True(t, ctx.Has("surface"))

	assert.Equal(t, 60.0, formula.Evaluate("surface * length_la", ctx))
}

func TestValidate(t *testing.T) {
	defs := []types.VariableDefinition{
		{Name: "surface", Formula: "length * width", EvaluationOrder: 1},
		{Name: "volume", Formula: "surface * depth * coping", EvaluationOrder: 2},
		{Name: "coping", Formula: "perimeter * 0.3", EvaluationOrder: 3},
		{Name: "depth", Formula: "2", EvaluationOrder: 4},
		{Name: "Surface", Formula: "1 +", EvaluationOrder: 5},
		{Name: "ratio", Formula: "surface / 0", EvaluationOrder: 6},
		{Name: "2bad", Formula: "1", EvaluationOrder: 7},
	}

	type finding struct {
		variable string
		kind     formula.ErrorKind
	}
	var got []finding
	for _, d := range Validate(types.ShapeRectangular, defs) {
		got = append(got, finding{d.Variable, d.Kind})
	}

	assert.Equal(t, []finding{
		{"volume", formula.KindForwardReference},
		{"coping", formula.KindUnknownIdentifier},
		{"depth", KindReservedName},
		{"Surface", KindDuplicateName},
		{"Surface", formula.KindSyntax},
		{"ratio", formula.KindDivisionByZero},
		{"2bad", KindInvalidName},
	}, got)
}

func TestValidateClean(t *testing.T) {
	defs := []types.VariableDefinition{
		{Name: "surface_a", Formula: "length_ta * width_ta", EvaluationOrder: 1},
		{Name: "surface_b", Formula: "length_tb * width_tb", EvaluationOrder: 1},
		{Name: "surface", Formula: "surface_a + surface_b", EvaluationOrder: 2},
		{Name: "volume", Formula: "surface * depth", EvaluationOrder: 3},
	}
	assert.Empty(t, Validate(types.ShapeTShaped, defs))
}
