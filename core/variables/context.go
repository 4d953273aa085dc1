package variables

import (
	"math"
	"sort"
	"strings"

	"pool-boq/core/formula"
	"pool-boq/core/types"
	"pool-boq/internal/errors"
)

// Context is a checked variable context for one shape. The shape's
// dimension names are reserved, and a name, once defined, cannot be
// redefined under any casing.
type Context struct {
	shape  types.Shape
	values map[string]float64
	// lower-cased name -> name as first defined
	names map[string]string
}

// NewContext creates an empty context for shape
func NewContext(shape types.Shape) *Context {
	return &Context{
		shape:  shape,
		values: make(map[string]float64),
		names:  make(map[string]string),
	}
}

// ContextFromDimensions creates a context seeded with a validated dimension set
func ContextFromDimensions(ds types.DimensionSet) (*Context, error) {
	if err := ds.Validate(); err != nil {
		return nil, errors.Wrap(errors.TypeInput, "invalid dimension set", err)
	}
	c := NewContext(ds.Shape)
	for _, dim := range ds.Shape.Dimensions() {
		c.set(string(dim), ds.Values[dim])
	}
	return c, nil
}

// Shape returns the context's pool shape
func (c *Context) Shape() types.Shape {
	return c.shape
}

// SetDimension sets one of the shape's reserved dimensions
func (c *Context) SetDimension(dim types.Dimension, value float64) error {
	if !c.shape.IsReserved(string(dim)) {
		return errors.Newf(errors.TypeInput, "dimension %s does not belong to shape %s", dim, c.shape)
	}
	if err := checkFinite(string(dim), value); err != nil {
		return err
	}
	c.set(string(dim), value)
	return nil
}

// Define adds a derived variable
func (c *Context) Define(name string, value float64) error {
	if name == "" {
		return errors.New(errors.TypeValidation, "variable name is empty")
	}
	if types.IsReservedDimension(name) {
		return errors.Newf(errors.TypeValidation, "variable %s collides with a reserved dimension name", name).
			WithContext("variable", name)
	}
	if prev, ok := c.names[strings.ToLower(name)]; ok {
		return errors.Newf(errors.TypeValidation, "variable %s is already defined as %s", name, prev).
			WithContext("variable", name)
	}
	if err := checkFinite(name, value); err != nil {
		return err
	}
	c.set(name, value)
	return nil
}

// Lookup implements formula.Lookup, case-insensitively
func (c *Context) Lookup(name string) (float64, bool) {
	if v, ok := c.values[name]; ok {
		return v, true
	}
	canonical, ok := c.names[strings.ToLower(name)]
	if !ok {
		return 0, false
	}
	return c.values[canonical], true
}

// Has reports whether name is defined
func (c *Context) Has(name string) bool {
	_, ok := c.names[strings.ToLower(name)]
	return ok
}

// Names returns every defined name, sorted
func (c *Context) Names() []string {
	out := make([]string, 0, len(c.values))
	for k := range c.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Vars returns a copy of the context as plain vars
func (c *Context) Vars() formula.Vars {
	out := make(formula.Vars, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *Context) set(name string, value float64) {
	c.values[name] = value
	c.names[strings.ToLower(name)] = name
}

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Newf(errors.TypeValidation, "%s is not a finite number", name)
	}
	return nil
}
