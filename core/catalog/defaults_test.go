package catalog

import (
	"testing"

	"pool-boq/core/boq"
	"pool-boq/core/guards"
	"pool-boq/core/pricing"
	"pool-boq/core/types"
	"pool-boq/core/variables"
)

var sampleDims = map[types.Shape]map[string]float64{
	types.ShapeRectangular: {"length": 8, "width": 4, "depth": 1.5},
	types.ShapeLShaped:     {"length_la": 8, "width_la": 4, "length_lb": 3, "width_lb": 3, "depth": 1.5},
	types.ShapeTShaped:     {"length_ta": 10, "width_ta": 4, "length_tb": 4, "width_tb": 3, "depth": 1.4},
}

func TestDefaultsAreClean(t *testing.T) {
	for _, shape := range types.Shapes() {
		t.Run(string(shape), func(t *testing.T) {
			tmpl, defs, prices, err := Defaults(shape)
			if err != nil {
				t.Fatalf("Defaults(%s) error: %v", shape, err)
			}
			if tmpl.Shape != shape {
				t.Errorf("template shape = %s, want %s", tmpl.Shape, shape)
			}

			report := guards.CheckVariables(shape, defs)
			report.Merge(guards.CheckTemplate(tmpl, guards.KnownNames(shape, defs), pricing.NewTable(prices)))
			report.Merge(guards.CheckPriceList(tmpl, prices))
			for _, d := range report.Diagnostics {
				t.Errorf("%s %s: %s", d.Severity, d.Location, d.Message)
			}
		})
	}
}

func TestEveryShapeDefinesDerivedNames(t *testing.T) {
	for _, shape := range types.Shapes() {
		defs, err := Variables(shape)
		if err != nil {
			t.Fatalf("Variables(%s) error: %v", shape, err)
		}
		defined := make(map[string]bool)
		for _, d := range defs {
			defined[d.Name] = true
		}
		for _, name := range DerivedNames() {
			if !defined[name] {
				t.Errorf("%s does not define %s", shape, name)
			}
		}
	}
}

func TestDefaultsPrice(t *testing.T) {
	for _, shape := range types.Shapes() {
		t.Run(string(shape), func(t *testing.T) {
			tmpl, defs, prices, err := Defaults(shape)
			if err != nil {
				t.Fatal(err)
			}
			ctx := variables.Resolve(sampleDims[shape], defs)
			res := boq.Price(tmpl.Categories, ctx, pricing.NewTable(prices))

			if !res.BaseSaleTotal.IsPositive() {
				t.Errorf("base sale total = %s, want > 0", res.BaseSaleTotal)
			}
			if len(res.Fallbacks) != 0 {
				t.Errorf("unexpected formula fallbacks: %+v", res.Fallbacks)
			}
			for _, id := range []string{"heating", "lighting", "cover"} {
				if total, ok := res.PerOptionCategoryTotal[id]; !ok || !total.IsPositive() {
					t.Errorf("option %s total = %s, want > 0", id, total)
				}
			}
		})
	}
}

func TestRectangularDerivedValues(t *testing.T) {
	defs, _ := Variables(types.ShapeRectangular)
	ctx := variables.Resolve(sampleDims[types.ShapeRectangular], defs)

	want := map[string]float64{
		Surface:   32,
		Perimeter: 24,
		WallArea:  36,
		Volume:    48,
		LinerArea: 68,
		// CEIL(48 / 4)
		TurnoverRate: 12,
	}
	for name, v := range want {
		if ctx[name] != v {
			t.Errorf("%s = %v, want %v", name, ctx[name], v)
		}
	}
}

func TestUnknownShape(t *testing.T) {
	if _, _, _, err := Defaults("oval"); err == nil {
		t.Error("expected an error for an unknown shape")
	}
}
