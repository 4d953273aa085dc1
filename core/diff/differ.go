// Package diff compares two priced bills of quantities line by line,
// e.g. the same pool before and after a template edit or a size change.
package diff

import (
	"sort"

	"github.com/shopspring/decimal"

	"pool-boq/core/boq"
)

// ChangeType indicates the type of change
type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeRemoved   ChangeType = "removed"
	ChangeModified  ChangeType = "modified"
	ChangeUnchanged ChangeType = "unchanged"
)

// Result is the complete diff between two pricing results
type Result struct {
	BaseBefore   decimal.Decimal `json:"base_before"`
	BaseAfter    decimal.Decimal `json:"base_after"`
	BaseDelta    decimal.Decimal `json:"base_delta"`
	DeltaPercent float64         `json:"delta_percent"`

	// Options maps option category ID to its sale total delta
	Options map[string]decimal.Decimal `json:"options"`

	Added   []LineDiff `json:"added"`
	Removed []LineDiff `json:"removed"`
	Changed []LineDiff `json:"changed"`

	UnchangedCount int `json:"unchanged_count"`
}

// LineDiff describes the change to one line
type LineDiff struct {
	CategoryID  string     `json:"category_id"`
	LineID      string     `json:"line_id"`
	Description string     `json:"description"`
	ChangeType  ChangeType `json:"change_type"`

	Before *boq.PricedLine `json:"before,omitempty"`
	After  *boq.PricedLine `json:"after,omitempty"`
	Delta  decimal.Decimal `json:"delta"`

	// Reasons names the inputs that moved: quantity, unit_cost, margin
	Reasons []string `json:"reasons,omitempty"`
}

// Differ computes diffs between pricing results
type Differ struct {
	// Threshold is the smallest sale delta reported as a change
	Threshold decimal.Decimal
}

// NewDiffer creates a differ; a non-positive threshold means one cent
func NewDiffer(threshold decimal.Decimal) *Differ {
	if !threshold.IsPositive() {
		threshold = decimal.New(1, -2)
	}
	return &Differ{Threshold: threshold}
}

type lineKey struct {
	category string
	line     string
}

type located struct {
	category string
	line     boq.PricedLine
}

// Diff computes the diff between before and after
func (d *Differ) Diff(before, after *boq.Result) *Result {
	result := &Result{
		BaseBefore: before.BaseSaleTotal,
		BaseAfter:  after.BaseSaleTotal,
		BaseDelta:  after.BaseSaleTotal.Sub(before.BaseSaleTotal),
		Options:    make(map[string]decimal.Decimal),
		Added:      []LineDiff{},
		Removed:    []LineDiff{},
		Changed:    []LineDiff{},
	}
	if !before.BaseSaleTotal.IsZero() {
		result.DeltaPercent = result.BaseDelta.Div(before.BaseSaleTotal).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}

	for id, v := range after.PerOptionCategoryTotal {
		result.Options[id] = v.Sub(before.PerOptionCategoryTotal[id])
	}
	for id, v := range before.PerOptionCategoryTotal {
		if _, ok := after.PerOptionCategoryTotal[id]; !ok {
			result.Options[id] = v.Neg()
		}
	}

	beforeLines := index(before)
	afterLines := index(after)

	for key, a := range afterLines {
		b, existed := beforeLines[key]
		if !existed {
			line := a.line
			result.Added = append(result.Added, LineDiff{
				CategoryID:  a.category,
				LineID:      line.ID,
				Description: line.Description,
				ChangeType:  ChangeAdded,
				After:       &line,
				Delta:       line.LineSale,
			})
			continue
		}
		ld := d.compare(b, a)
		if ld.ChangeType == ChangeModified {
			result.Changed = append(result.Changed, ld)
		} else {
			result.UnchangedCount++
		}
	}
	for key, b := range beforeLines {
		if _, exists := afterLines[key]; !exists {
			line := b.line
			result.Removed = append(result.Removed, LineDiff{
				CategoryID:  b.category,
				LineID:      line.ID,
				Description: line.Description,
				ChangeType:  ChangeRemoved,
				Before:      &line,
				Delta:       line.LineSale.Neg(),
			})
		}
	}

	sortDiffs(result.Added)
	sortDiffs(result.Removed)
	sortDiffs(result.Changed)
	return result
}

func (d *Differ) compare(before, after located) LineDiff {
	b, a := before.line, after.line
	ld := LineDiff{
		CategoryID:  after.category,
		LineID:      a.ID,
		Description: a.Description,
		ChangeType:  ChangeUnchanged,
		Before:      &b,
		After:       &a,
		Delta:       a.LineSale.Sub(b.LineSale),
	}
	if ld.Delta.Abs().LessThan(d.Threshold) {
		return ld
	}
	ld.ChangeType = ChangeModified
	if !a.Quantity.Equal(b.Quantity) {
		ld.Reasons = append(ld.Reasons, "quantity")
	}
	if !a.UnitCost.Equal(b.UnitCost) {
		ld.Reasons = append(ld.Reasons, "unit_cost")
	}
	if !a.MarginPercent.Equal(b.MarginPercent) {
		ld.Reasons = append(ld.Reasons, "margin")
	}
	return ld
}

// index keys lines by category and line ID, or description when the ID is blank
func index(r *boq.Result) map[lineKey]located {
	out := make(map[lineKey]located)
	for _, cat := range r.Categories {
		for _, l := range cat.Lines {
			id := l.ID
			if id == "" {
				id = "desc:" + l.Description
			}
			out[lineKey{cat.ID, id}] = located{category: cat.ID, line: l}
		}
	}
	return out
}

// sortDiffs orders by category then line for deterministic output
func sortDiffs(diffs []LineDiff) {
	sort.Slice(diffs, func(i, j int) bool {
		if diffs[i].CategoryID != diffs[j].CategoryID {
			return diffs[i].CategoryID < diffs[j].CategoryID
		}
		if diffs[i].LineID != diffs[j].LineID {
			return diffs[i].LineID < diffs[j].LineID
		}
		return diffs[i].Description < diffs[j].Description
	})
}
