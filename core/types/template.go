// Package types - BOQ template and variable data contracts
// These are inert records: they round-trip through repositories unchanged
// and carry no pricing logic.
package types

import (
	"sort"

	"github.com/shopspring/decimal"
)

// VariableDefinition is an admin-authored derived variable
type VariableDefinition struct {
	// ID is the storage identifier
	ID string `json:"id,omitempty"`

	// Name is the identifier formulas use (case-insensitive lookup)
	Name string `json:"name"`

	// Formula is evaluated against dimensions and earlier variables
	Formula string `json:"formula"`

	// EvaluationOrder sorts definitions ascending; ties keep input order
	EvaluationOrder int `json:"evaluation_order"`

	// Description is free text for the admin screen
	Description string `json:"description,omitempty"`
}

// Template is a complete BOQ for one pool shape
type Template struct {
	// ID is the storage identifier
	ID string `json:"id"`

	// Name is a human-readable label
	Name string `json:"name"`

	// Shape is the pool shape this template prices
	Shape Shape `json:"shape"`

	// Version is bumped on every save
	Version int `json:"version"`

	// Categories are the top-level groups
	Categories []Category `json:"categories"`
}

// Category groups lines; option categories are priced separately from the base
type Category struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	IsOption      bool          `json:"is_option"`
	DisplayOrder  int           `json:"display_order"`
	Lines         []Line        `json:"lines,omitempty"`
	Subcategories []Subcategory `json:"subcategories,omitempty"`
}

// Subcategory is a second grouping level inside a category
type Subcategory struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
	Lines        []Line `json:"lines"`
}

// Line is one priced material or labour item
type Line struct {
	// ID is the storage identifier
	ID string `json:"id"`

	// Description is shown on the quote
	Description string `json:"description"`

	// QuantityFormula, when set, replaces Quantity
	QuantityFormula string `json:"quantity_formula,omitempty"`

	// Quantity is the literal fallback quantity
	Quantity decimal.Decimal `json:"quantity"`

	// Unit is the quantity unit (m2, m3, ml, u, forfait)
	Unit string `json:"unit"`

	// UnitCostFormula, when set, takes priority over every other unit cost source
	UnitCostFormula string `json:"unit_cost_formula,omitempty"`

	// PriceListReference resolves a unit cost from the price list
	PriceListReference string `json:"price_list_reference,omitempty"`

	// UnitCostHT is the static unit cost, excluding tax
	UnitCostHT decimal.Decimal `json:"unit_cost_ht"`

	// MarginPercent is the markup applied to the line cost
	MarginPercent decimal.Decimal `json:"margin_percent"`

	// DisplayOrder sorts lines inside their container
	DisplayOrder int `json:"display_order"`
}

// AllLines returns the category's direct lines followed by its subcategories'
// lines, each container in display order.
func (c Category) AllLines() []Line {
	lines := SortedLines(c.Lines)
	subs := make([]Subcategory, len(c.Subcategories))
	copy(subs, c.Subcategories)
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].DisplayOrder < subs[j].DisplayOrder })
	for _, s := range subs {
		lines = append(lines, SortedLines(s.Lines)...)
	}
	return lines
}

// SortedCategories returns a copy ordered by DisplayOrder (stable)
func SortedCategories(cats []Category) []Category {
	out := make([]Category, len(cats))
	copy(out, cats)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

// SortedLines returns a copy ordered by DisplayOrder (stable)
func SortedLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

// SortedVariables returns a copy ordered by EvaluationOrder (stable)
func SortedVariables(defs []VariableDefinition) []VariableDefinition {
	out := make([]VariableDefinition, len(defs))
	copy(out, defs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].EvaluationOrder < out[j].EvaluationOrder })
	return out
}

// PriceListEntry is one row of the external price list
type PriceListEntry struct {
	// Reference is the key template lines point at
	Reference string `json:"reference"`

	// Label describes the item
	Label string `json:"label,omitempty"`

	// Unit is the priced unit
	Unit string `json:"unit,omitempty"`

	// UnitPriceHT is the unit price excluding tax
	UnitPriceHT decimal.Decimal `json:"unit_price_ht"`
}
