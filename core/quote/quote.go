// Package quote turns a BOQ pricing result into customer-facing figures:
// the unforeseen-costs uplift, VAT conversion and the selected options.
// This is the only place amounts are rounded.
package quote

import (
	"sort"

	"github.com/shopspring/decimal"

	"pool-boq/core/boq"
	"pool-boq/core/types"
)

// Places is the number of decimal places quoted amounts are rounded to
const Places = 2

var hundred = decimal.NewFromInt(100)

// TTC converts a tax-exclusive amount to tax-inclusive: ht × (1 + vatRate/100)
func TTC(ht, vatRate decimal.Decimal) decimal.Decimal {
	return ht.Add(ht.Mul(vatRate).Div(hundred))
}

// ApplyUnforeseen raises total by percent
func ApplyUnforeseen(total, percent decimal.Decimal) decimal.Decimal {
	return total.Add(total.Mul(percent).Div(hundred))
}

// Settings are the caller-side adjustments
type Settings struct {
	// UnforeseenPercent uplifts the base price only
	UnforeseenPercent decimal.Decimal `json:"unforeseen_percent"`

	// VATRate is a percentage, e.g. 20
	VATRate decimal.Decimal `json:"vat_rate"`

	Currency types.Currency `json:"currency"`
}

// Amount is a rounded HT/TTC pair
type Amount struct {
	HT  decimal.Decimal `json:"ht"`
	TTC decimal.Decimal `json:"ttc"`
}

// Option is one priceable option category
type Option struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
	Amount
}

// Quote is the presentation-ready price
type Quote struct {
	Currency          types.Currency  `json:"currency"`
	UnforeseenPercent decimal.Decimal `json:"unforeseen_percent"`
	VATRate           decimal.Decimal `json:"vat_rate"`

	// Base is the base sale total with the unforeseen uplift
	Base Amount `json:"base"`

	// Options lists every option category in display order
	Options []Option `json:"options"`

	// SelectedOptions sums the selected options
	SelectedOptions Amount `json:"selected_options"`

	// Total is Base plus SelectedOptions
	Total Amount `json:"total"`

	// UnknownOptions lists selected IDs the template does not define
	UnknownOptions []string `json:"unknown_options,omitempty"`
}

// Build rounds result into a quote. Each option and the base are rounded
// first; the totals are sums of the rounded amounts so the quote adds up.
func Build(result *boq.Result, selected []string, s Settings) *Quote {
	if s.Currency == "" {
		s.Currency = types.CurrencyEUR
	}
	q := &Quote{
		Currency:          s.Currency,
		UnforeseenPercent: s.UnforeseenPercent,
		VATRate:           s.VATRate,
		SelectedOptions:   Amount{HT: decimal.Zero, TTC: decimal.Zero},
	}

	q.Base = amount(ApplyUnforeseen(result.BaseSaleTotal, s.UnforeseenPercent), s.VATRate)

	want := make(map[string]bool, len(selected))
	for _, id := range selected {
		want[id] = true
	}

	seen := make(map[string]bool)
	for _, c := range result.Categories {
		if !c.IsOption || seen[c.ID] {
			continue
		}
		seen[c.ID] = true

		opt := Option{
			ID:       c.ID,
			Name:     c.Name,
			Selected: want[c.ID],
			Amount:   amount(result.PerOptionCategoryTotal[c.ID], s.VATRate),
		}
		if opt.Selected {
			q.SelectedOptions.HT = q.SelectedOptions.HT.Add(opt.HT)
			q.SelectedOptions.TTC = q.SelectedOptions.TTC.Add(opt.TTC)
		}
		q.Options = append(q.Options, opt)
	}

	for id := range want {
		if !seen[id] {
			q.UnknownOptions = append(q.UnknownOptions, id)
		}
	}
	sort.Strings(q.UnknownOptions)

	q.Total = Amount{
		HT:  q.Base.HT.Add(q.SelectedOptions.HT),
		TTC: q.Base.TTC.Add(q.SelectedOptions.TTC),
	}
	return q
}

func amount(ht, vatRate decimal.Decimal) Amount {
	rounded := ht.Round(Places)
	return Amount{HT: rounded, TTC: TTC(rounded, vatRate).Round(Places)}
}
