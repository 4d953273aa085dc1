// Package boq prices a BOQ template against a resolved variable context.
//
// Every line is evaluated independently. A formula that fails contributes 0
// and the rest of the template still aggregates, so a total is always
// available. Sums are exact decimals; nothing is rounded here.
package boq

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pool-boq/core/formula"
	"pool-boq/core/pricing"
	"pool-boq/core/types"
	"pool-boq/internal/logging"
	"pool-boq/internal/metrics"
)

// UnitCostSource records where a line's unit cost came from
type UnitCostSource string

const (
	SourceFormula   UnitCostSource = "formula"
	SourcePriceList UnitCostSource = "price_list"
	SourceStatic    UnitCostSource = "static"
)

// PricedLine is one evaluated template line
type PricedLine struct {
	ID             string          `json:"id"`
	Description    string          `json:"description"`
	Unit           string          `json:"unit"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	UnitCostSource UnitCostSource  `json:"unit_cost_source"`
	MarginPercent  decimal.Decimal `json:"margin_percent"`
	LineCost       decimal.Decimal `json:"line_cost"`
	LineSale       decimal.Decimal `json:"line_sale"`

	// Clamped is set when a negative cost or sale was raised to 0
	Clamped bool `json:"clamped,omitempty"`
}

// PricedCategory is a category with its lines priced and summed
type PricedCategory struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	IsOption  bool            `json:"is_option"`
	CostTotal decimal.Decimal `json:"cost_total"`
	SaleTotal decimal.Decimal `json:"sale_total"`
	Lines     []PricedLine    `json:"lines"`
}

// Fallback records a formula that degraded to 0
type Fallback struct {
	CategoryID string `json:"category_id"`
	LineID     string `json:"line_id"`
	Field      string `json:"field"`
	Formula    string `json:"formula"`
	Error      string `json:"error"`
}

// Result is the outcome of a pricing run
type Result struct {
	// BaseCostTotal sums line costs of every non-option category
	BaseCostTotal decimal.Decimal `json:"base_cost_total"`

	// BaseSaleTotal sums line sale prices of every non-option category,
	// before any unforeseen-costs uplift
	BaseSaleTotal decimal.Decimal `json:"base_sale_total"`

	// PerOptionCategoryTotal maps option category ID to its sale total
	PerOptionCategoryTotal map[string]decimal.Decimal `json:"per_option_category_total"`

	// Categories holds every category in display order
	Categories []PricedCategory `json:"categories"`

	// Fallbacks lists formulas that evaluated to the zero fallback
	Fallbacks []Fallback `json:"fallbacks,omitempty"`
}

// Option returns the priced option category with the given ID
func (r *Result) Option(id string) (PricedCategory, bool) {
	for _, c := range r.Categories {
		if c.IsOption && c.ID == id {
			return c, true
		}
	}
	return PricedCategory{}, false
}

// Price prices categories against ctx. prices may be nil.
func Price(categories []types.Category, ctx formula.Lookup, prices pricing.PriceList) *Result {
	return NewAggregator(nil, nil).Price(categories, ctx, prices)
}

// Aggregator is Price with logging and metrics attached. It holds no
// per-run state and is safe for concurrent use.
type Aggregator struct {
	logger  *zap.Logger
	metrics metrics.Observer
}

// NewAggregator creates an aggregator. Both arguments may be nil.
func NewAggregator(logger *zap.Logger, observer metrics.Observer) *Aggregator {
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &Aggregator{logger: logging.OrNop(logger), metrics: observer}
}

// Price prices categories against ctx
func (a *Aggregator) Price(categories []types.Category, ctx formula.Lookup, prices pricing.PriceList) *Result {
	if prices == nil {
		prices = pricing.Empty
	}

	res := &Result{
		BaseCostTotal:          decimal.Zero,
		BaseSaleTotal:          decimal.Zero,
		PerOptionCategoryTotal: make(map[string]decimal.Decimal),
		Categories:             make([]PricedCategory, 0, len(categories)),
	}

	for _, cat := range types.SortedCategories(categories) {
		pc := PricedCategory{
			ID:        cat.ID,
			Name:      cat.Name,
			IsOption:  cat.IsOption,
			CostTotal: decimal.Zero,
			SaleTotal: decimal.Zero,
		}
		for _, line := range cat.AllLines() {
			pl := a.priceLine(cat.ID, line, ctx, prices, res)
			pc.CostTotal = pc.CostTotal.Add(pl.LineCost)
			pc.SaleTotal = pc.SaleTotal.Add(pl.LineSale)
			pc.Lines = append(pc.Lines, pl)
		}

		if cat.IsOption {
			// Option categories sharing an ID are priced as one option.
			prev, ok := res.PerOptionCategoryTotal[cat.ID]
			if !ok {
				prev = decimal.Zero
			}
			res.PerOptionCategoryTotal[cat.ID] = prev.Add(pc.SaleTotal)
		} else {
			res.BaseCostTotal = res.BaseCostTotal.Add(pc.CostTotal)
			res.BaseSaleTotal = res.BaseSaleTotal.Add(pc.SaleTotal)
		}
		res.Categories = append(res.Categories, pc)
	}
	return res
}

func (a *Aggregator) priceLine(categoryID string, line types.Line, ctx formula.Lookup, prices pricing.PriceList, res *Result) PricedLine {
	pl := PricedLine{
		ID:            line.ID,
		Description:   line.Description,
		Unit:          line.Unit,
		MarginPercent: line.MarginPercent,
	}

	if present(line.QuantityFormula) {
		pl.Quantity = a.evaluate(categoryID, line, "quantity", line.QuantityFormula, ctx, res)
	} else {
		pl.Quantity = line.Quantity
	}

	switch {
	case present(line.UnitCostFormula):
		pl.UnitCost = a.evaluate(categoryID, line, "unit_cost", line.UnitCostFormula, ctx, res)
		pl.UnitCostSource = SourceFormula
	default:
		if p, ok := prices.UnitPrice(line.PriceListReference); ok && present(line.PriceListReference) {
			pl.UnitCost = p
			pl.UnitCostSource = SourcePriceList
		} else {
			pl.UnitCost = line.UnitCostHT
			pl.UnitCostSource = SourceStatic
		}
	}

	pl.LineCost = pl.Quantity.Mul(pl.UnitCost)
	if pl.LineCost.IsNegative() {
		pl.LineCost = decimal.Zero
		pl.Clamped = true
	}

	// cost × (1 + margin/100)
	pl.LineSale = pl.LineCost.Add(pl.LineCost.Mul(line.MarginPercent.Shift(-2)))
	if pl.LineSale.IsNegative() {
		pl.LineSale = decimal.Zero
		pl.Clamped = true
	}

	if pl.Clamped {
		a.logger.Debug("negative line clamped to 0",
			zap.String("category", categoryID),
			zap.String("line", line.ID),
		)
	}
	return pl
}

func (a *Aggregator) evaluate(categoryID string, line types.Line, field, src string, ctx formula.Lookup, res *Result) decimal.Decimal {
	v, err := formula.EvaluateStrict(src, ctx)
	if err != nil {
		res.Fallbacks = append(res.Fallbacks, Fallback{
			CategoryID: categoryID,
			LineID:     line.ID,
			Field:      field,
			Formula:    src,
			Error:      err.Error(),
		})
		a.logger.Debug("line formula fell back to 0",
			zap.String("category", categoryID),
			zap.String("line", line.ID),
			zap.String("field", field),
			zap.Error(err),
		)
		a.metrics.FormulaFallback(field)
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}
