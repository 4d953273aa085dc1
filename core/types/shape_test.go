package types

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShape(t *testing.T) {
	tests := []struct {
		in      string
		want    Shape
		wantErr bool
	}{
		{"rectangular", ShapeRectangular, false},
		{" L_SHAPED ", ShapeLShaped, false},
		{"t_shaped", ShapeTShaped, false},
		{"round", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseShape(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShapeDimensionsAreIndependentCopies(t *testing.T) {
	dims := ShapeRectangular.Dimensions()
	dims[0] = "mutated"
	assert.Equal(t, DimLength, ShapeRectangular.Dimensions()[0])
}

func TestIsReserved(t *testing.T) {
	assert.True(t, ShapeLShaped.IsReserved("LENGTH_LA"))
	assert.False(t, ShapeLShaped.IsReserved("length"))
	assert.True(t, IsReservedDimension("length"))
	assert.True(t, IsReservedDimension("Width_TB"))
	assert.False(t, IsReservedDimension("surface"))
}

func TestDimensionSetValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     DimensionSet
		wantErr string
	}{
		{
			name: "complete rectangular",
			set:  NewDimensionSet(ShapeRectangular, map[string]float64{"length": 8, "width": 4, "depth": 1.5}),
		},
		{
			name:    "missing depth",
			set:     NewDimensionSet(ShapeRectangular, map[string]float64{"length": 8, "width": 4}),
			wantErr: "missing dimension depth",
		},
		{
			name:    "negative width",
			set:     NewDimensionSet(ShapeRectangular, map[string]float64{"length": 8, "width": -4, "depth": 1.5}),
			wantErr: "width must not be negative",
		},
		{
			name:    "nan length",
			set:     NewDimensionSet(ShapeRectangular, map[string]float64{"length": math.NaN(), "width": 4, "depth": 1.5}),
			wantErr: "not a finite number",
		},
		{
			name: "foreign dimension",
			set: NewDimensionSet(ShapeRectangular, map[string]float64{
				"length": 8, "width": 4, "depth": 1.5, "length_la": 3,
			}),
			wantErr: "length_la does not belong to shape rectangular",
		},
		{
			name:    "unknown shape",
			set:     DimensionSet{Shape: "oval"},
			wantErr: "unknown pool shape",
		},
		{
			name: "keys are lower-cased",
			set: NewDimensionSet(ShapeLShaped, map[string]float64{
				"Length_LA": 6, "WIDTH_LA": 3, "length_lb": 3, "width_lb": 2, "depth": 1.4,
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestTemplateJSONRoundTrip(t *testing.T) {
	tpl := Template{
		ID:    "tpl-1",
		Name:  "Rectangular pool",
		Shape: ShapeRectangular,
		Categories: []Category{{
			ID:   "structure",
			Name: "Structure",
			Subcategories: []Subcategory{{
				ID:   "concrete",
				Name: "Concrete",
				Lines: []Line{{
					ID:                 "slab",
					Description:        "Floor slab",
					QuantityFormula:    "surface * 0.2",
					Unit:               "m3",
					PriceListReference: "concrete_c25",
					UnitCostHT:         decimal.RequireFromString("120.5"),
					MarginPercent:      decimal.NewFromInt(30),
				}},
			}},
		}},
	}

	data, err := json.Marshal(tpl)
	require.NoError(t, err)

	var back Template
	require.NoError(t, json.Unmarshal(data, &back))

	line := back.Categories[0].Subcategories[0].Lines[0]
	assert.Equal(t, "surface * 0.2", line.QuantityFormula)
	assert.True(t, line.UnitCostHT.Equal(decimal.RequireFromString("120.5")))
	assert.True(t, line.MarginPercent.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, ShapeRectangular, back.Shape)
}

func TestAllLinesOrdering(t *testing.T) {
	cat := Category{
		Lines: []Line{{ID: "b", DisplayOrder: 2}, {ID: "a", DisplayOrder: 1}},
		Subcategories: []Subcategory{
			{ID: "s2", DisplayOrder: 2, Lines: []Line{{ID: "s2-a"}}},
			{ID: "s1", DisplayOrder: 1, Lines: []Line{{ID: "s1-b", DisplayOrder: 5}, {ID: "s1-a", DisplayOrder: 5}}},
		},
	}

	var ids []string
	for _, l := range cat.AllLines() {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"a", "b", "s1-b", "s1-a", "s2-a"}, ids)
}
