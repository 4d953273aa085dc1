// Package guards - Authoring checks for templates and variable sets
// Pricing never fails on bad data; it prices the bad line at 0. These
// checks run before data is saved or on demand so authors see the typo
// that would otherwise zero a line silently.
package guards

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pool-boq/core/formula"
	"pool-boq/core/pricing"
	"pool-boq/core/types"
	"pool-boq/core/variables"
	"pool-boq/internal/errors"
)

const (
	KindUnknownShape     formula.ErrorKind = "unknown_shape"
	KindDuplicateID      formula.ErrorKind = "duplicate_id"
	KindMissingID        formula.ErrorKind = "missing_id"
	KindEmptyTemplate    formula.ErrorKind = "empty_template"
	KindEmptyCategory    formula.ErrorKind = "empty_category"
	KindUnresolvedPrice  formula.ErrorKind = "unresolved_price"
	KindMissingUnitCost  formula.ErrorKind = "missing_unit_cost"
	KindMissingQuantity  formula.ErrorKind = "missing_quantity"
	KindNegativeValue    formula.ErrorKind = "negative_value"
	KindNegativeMargin   formula.ErrorKind = "negative_margin"
	KindMarginBelowCost  formula.ErrorKind = "margin_below_cost"
	KindUnusedPriceEntry formula.ErrorKind = "unused_price_entry"
)

// Diagnostic is one finding, located by a dotted path
type Diagnostic struct {
	Severity formula.Severity  `json:"severity"`
	Kind     formula.ErrorKind `json:"kind"`

	// Location is e.g. "structure/structure.slab quantity_formula" or "variable surface"
	Location string `json:"location"`

	Message string `json:"message"`
}

// Report collects diagnostics
type Report struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// HasErrors reports whether any diagnostic is an error
func (r Report) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == formula.SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of errors and warnings
func (r Report) Count() (errs, warnings int) {
	for _, d := range r.Diagnostics {
		if d.Severity == formula.SeverityError {
			errs++
		} else {
			warnings++
		}
	}
	return errs, warnings
}

// Merge appends other's diagnostics
func (r *Report) Merge(other Report) {
	r.Diagnostics = append(r.Diagnostics, other.Diagnostics...)
}

// Err returns a VALIDATION_ERROR summarising the report, or nil when it has no errors
func (r Report) Err() error {
	errs, warnings := r.Count()
	if errs == 0 {
		return nil
	}
	first := ""
	for _, d := range r.Diagnostics {
		if d.Severity == formula.SeverityError {
			first = d.Location + ": " + d.Message
			break
		}
	}
	return errors.Newf(errors.TypeValidation, "%d error(s), %d warning(s); first: %s", errs, warnings, first).
		WithContext("errors", errs).
		WithContext("warnings", warnings)
}

func (r *Report) add(sev formula.Severity, kind formula.ErrorKind, location, format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Severity: sev,
		Kind:     kind,
		Location: location,
		Message:  fmt.Sprintf(format, args...),
	})
}

// KnownNames returns the names a template for shape may reference: the
// shape's dimensions plus every defined variable.
func KnownNames(shape types.Shape, defs []types.VariableDefinition) []string {
	var names []string
	for _, d := range shape.Dimensions() {
		names = append(names, string(d))
	}
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names
}

// CheckVariables validates a variable set for shape
func CheckVariables(shape types.Shape, defs []types.VariableDefinition) Report {
	var r Report
	if _, err := types.ParseShape(string(shape)); err != nil {
		r.add(formula.SeverityError, KindUnknownShape, "variables", "%v", err)
		return r
	}
	for _, d := range variables.Validate(shape, defs) {
		r.Diagnostics = append(r.Diagnostics, Diagnostic{
			Severity: d.Severity,
			Kind:     d.Kind,
			Location: "variable " + d.Variable,
			Message:  d.Message,
		})
	}
	return r
}

// CheckTemplate validates a template. known lists the variable names its
// formulas may use (see KnownNames); prices may be nil, in which case no
// price-list reference resolves.
func CheckTemplate(t types.Template, known []string, prices pricing.PriceList) Report {
	var r Report
	if prices == nil {
		prices = pricing.Empty
	}

	if _, err := types.ParseShape(string(t.Shape)); err != nil {
		r.add(formula.SeverityError, KindUnknownShape, "template", "%v", err)
	}
	if len(t.Categories) == 0 {
		r.add(formula.SeverityWarning, KindEmptyTemplate, "template", "template has no categories")
	}

	knownSet := make(map[string]bool, len(known))
	for _, n := range known {
		knownSet[strings.ToLower(n)] = true
	}
	isKnown := func(name string) bool { return knownSet[strings.ToLower(name)] }

	ids := make(map[string]string)
	checkID := func(id, location string) {
		if id == "" {
			r.add(formula.SeverityWarning, KindMissingID, location, "missing id")
			return
		}
		if prev, ok := ids[id]; ok {
			r.add(formula.SeverityError, KindDuplicateID, location, "id %q is already used by %s", id, prev)
			return
		}
		ids[id] = location
	}

	for _, cat := range types.SortedCategories(t.Categories) {
		catLoc := cat.ID
		if catLoc == "" {
			catLoc = cat.Name
		}
		checkID(cat.ID, catLoc)

		lines := cat.AllLines()
		if len(lines) == 0 {
			r.add(formula.SeverityWarning, KindEmptyCategory, catLoc, "category has no lines")
		}
		for _, sub := range cat.Subcategories {
			checkID(sub.ID, catLoc+"/"+sub.ID)
		}
		for _, line := range lines {
			loc := catLoc + "/" + line.ID
			checkID(line.ID, loc)
			checkLine(&r, loc, line, isKnown, prices)
		}
	}
	return r
}

func checkLine(r *Report, loc string, line types.Line, isKnown func(string) bool, prices pricing.PriceList) {
	if strings.TrimSpace(line.QuantityFormula) != "" {
		for _, d := range formula.Check(line.QuantityFormula, isKnown) {
			r.Diagnostics = append(r.Diagnostics, located(d, loc+" quantity_formula"))
		}
	} else if line.Quantity.IsZero() {
		r.add(formula.SeverityWarning, KindMissingQuantity, loc, "no quantity formula and a zero literal quantity")
	} else if line.Quantity.IsNegative() {
		r.add(formula.SeverityWarning, KindNegativeValue, loc, "negative quantity %s", line.Quantity)
	}

	switch {
	case strings.TrimSpace(line.UnitCostFormula) != "":
		for _, d := range formula.Check(line.UnitCostFormula, isKnown) {
			r.Diagnostics = append(r.Diagnostics, located(d, loc+" unit_cost_formula"))
		}
	case strings.TrimSpace(line.PriceListReference) != "":
		if _, ok := prices.UnitPrice(line.PriceListReference); !ok {
			sev := formula.SeverityError
			msg := "price list reference %q does not resolve and there is no static unit cost"
			if !line.UnitCostHT.IsZero() {
				sev = formula.SeverityWarning
				msg = "price list reference %q does not resolve; the static unit cost is used"
			}
			r.add(sev, KindUnresolvedPrice, loc, msg, line.PriceListReference)
		}
	case line.UnitCostHT.IsZero():
		r.add(formula.SeverityWarning, KindMissingUnitCost, loc, "no unit cost formula, price list reference or static unit cost")
	}
	if line.UnitCostHT.IsNegative() {
		r.add(formula.SeverityWarning, KindNegativeValue, loc, "negative static unit cost %s", line.UnitCostHT)
	}

	switch {
	case line.MarginPercent.LessThan(decimal.NewFromInt(-100)):
		r.add(formula.SeverityError, KindMarginBelowCost, loc, "margin %s%% makes the sale price negative", line.MarginPercent)
	case line.MarginPercent.IsNegative():
		r.add(formula.SeverityWarning, KindNegativeMargin, loc, "negative margin %s%%", line.MarginPercent)
	}
}

// CheckPriceList warns about entries no template line references
func CheckPriceList(t types.Template, entries []types.PriceListEntry) Report {
	used := make(map[string]bool)
	for _, cat := range t.Categories {
		for _, line := range cat.AllLines() {
			used[strings.ToLower(strings.TrimSpace(line.PriceListReference))] = true
		}
	}
	var r Report
	for _, e := range entries {
		if !used[strings.ToLower(strings.TrimSpace(e.Reference))] {
			r.add(formula.SeverityWarning, KindUnusedPriceEntry, "price "+e.Reference, "no template line references this entry")
		}
		if e.UnitPriceHT.IsNegative() {
			r.add(formula.SeverityWarning, KindNegativeValue, "price "+e.Reference, "negative unit price %s", e.UnitPriceHT)
		}
	}
	return r
}

func located(d formula.Diagnostic, loc string) Diagnostic {
	return Diagnostic{Severity: d.Severity, Kind: d.Kind, Location: loc, Message: d.Message}
}
