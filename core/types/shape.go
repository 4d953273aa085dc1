// Package types - Pool shapes and dimension sets
package types

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Shape is a pool footprint variant. Each shape implies a fixed set of
// dimension names.
type Shape string

const (
	ShapeRectangular Shape = "rectangular"
	ShapeLShaped     Shape = "l_shaped"
	ShapeTShaped     Shape = "t_shaped"
)

// Dimension is a reserved base measurement name
type Dimension string

const (
	DimLength Dimension = "length"
	DimWidth  Dimension = "width"
	DimDepth  Dimension = "depth"

	// L-shaped: two rectangular arms A and B
	DimLengthLA Dimension = "length_la"
	DimWidthLA  Dimension = "width_la"
	DimLengthLB Dimension = "length_lb"
	DimWidthLB  Dimension = "width_lb"

	// T-shaped: bar A and stem B
	DimLengthTA Dimension = "length_ta"
	DimWidthTA  Dimension = "width_ta"
	DimLengthTB Dimension = "length_tb"
	DimWidthTB  Dimension = "width_tb"
)

var shapeDimensions = map[Shape][]Dimension{
	ShapeRectangular: {DimLength, DimWidth, DimDepth},
	ShapeLShaped:     {DimLengthLA, DimWidthLA, DimLengthLB, DimWidthLB, DimDepth},
	ShapeTShaped:     {DimLengthTA, DimWidthTA, DimLengthTB, DimWidthTB, DimDepth},
}

// Shapes lists every supported shape
func Shapes() []Shape {
	return []Shape{ShapeRectangular, ShapeLShaped, ShapeTShaped}
}

// ParseShape parses a shape name, case-insensitively
func ParseShape(s string) (Shape, error) {
	sh := Shape(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := shapeDimensions[sh]; !ok {
		return "", fmt.Errorf("unknown pool shape %q", s)
	}
	return sh, nil
}

// String returns the string representation
func (s Shape) String() string {
	return string(s)
}

// Dimensions returns the shape's reserved dimension names in display order
func (s Shape) Dimensions() []Dimension {
	dims := shapeDimensions[s]
	out := make([]Dimension, len(dims))
	copy(out, dims)
	return out
}

// IsReserved reports whether name collides (case-insensitively) with one of
// the shape's dimension names.
func (s Shape) IsReserved(name string) bool {
	for _, d := range shapeDimensions[s] {
		if strings.EqualFold(string(d), name) {
			return true
		}
	}
	return false
}

// IsReservedDimension reports whether name is a dimension of any shape
func IsReservedDimension(name string) bool {
	for _, sh := range Shapes() {
		if sh.IsReserved(name) {
			return true
		}
	}
	return false
}

// DimensionSet holds the measurements (metres) entered for one pricing run
type DimensionSet struct {
	// Shape selects the dimension names that must be present
	Shape Shape `json:"shape"`

	// Values maps dimension name to measurement
	Values map[Dimension]float64 `json:"values"`
}

// NewDimensionSet builds a set from plain string keys
func NewDimensionSet(shape Shape, values map[string]float64) DimensionSet {
	ds := DimensionSet{Shape: shape, Values: make(map[Dimension]float64, len(values))}
	for k, v := range values {
		ds.Values[Dimension(strings.ToLower(k))] = v
	}
	return ds
}

// Validate checks the set against its shape: every dimension present,
// none unknown, all finite and non-negative.
func (d DimensionSet) Validate() error {
	expected, ok := shapeDimensions[d.Shape]
	if !ok {
		return fmt.Errorf("unknown pool shape %q", d.Shape)
	}

	var problems []string
	for _, dim := range expected {
		v, ok := d.Values[dim]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("missing dimension %s", dim))
		case math.IsNaN(v) || math.IsInf(v, 0):
			problems = append(problems, fmt.Sprintf("dimension %s is not a finite number", dim))
		case v < 0:
			problems = append(problems, fmt.Sprintf("dimension %s must not be negative", dim))
		}
	}

	var unknown []string
	for dim := range d.Values {
		if !d.Shape.IsReserved(string(dim)) {
			unknown = append(unknown, string(dim))
		}
	}
	sort.Strings(unknown)
	for _, u := range unknown {
		problems = append(problems, fmt.Sprintf("dimension %s does not belong to shape %s", u, d.Shape))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid dimensions: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Vars returns the set as a flat name to value map, the seed of a variable context
func (d DimensionSet) Vars() map[string]float64 {
	out := make(map[string]float64, len(d.Values))
	for k, v := range d.Values {
		out[string(k)] = v
	}
	return out
}
