package quote

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pool-boq/core/boq"
	"pool-boq/core/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTTC(t *testing.T) {
	tests := []struct {
		ht, rate, want string
	}{
		{"100", "20", "120"},
		{"100", "0", "100"},
		{"99.99", "5.5", "105.48945"},
		{"0", "20", "0"},
	}
	for _, tt := range tests {
		got := TTC(d(tt.ht), d(tt.rate))
		if !got.Equal(d(tt.want)) {
			t.Errorf("TTC(%s, %s) = %s, want %s", tt.ht, tt.rate, got, tt.want)
		}
	}
}

func TestApplyUnforeseen(t *testing.T) {
	got := ApplyUnforeseen(d("1000"), d("5"))
	if !got.Equal(d("1050")) {
		t.Errorf("ApplyUnforeseen = %s, want 1050", got)
	}
}

func result() *boq.Result {
	return &boq.Result{
		BaseSaleTotal: d("10000.004"),
		PerOptionCategoryTotal: map[string]decimal.Decimal{
			"heating":  d("2500"),
			"lighting": d("531.975"),
		},
		Categories: []boq.PricedCategory{
			{ID: "structure", Name: "Structure"},
			{ID: "lighting", Name: "Lighting", IsOption: true},
			{ID: "heating", Name: "Heat pump", IsOption: true},
		},
	}
}

func TestBuild(t *testing.T) {
	q := Build(result(), []string{"lighting", "cover"}, Settings{
		UnforeseenPercent: d("5"),
		VATRate:           d("20"),
	})

	assert.Equal(t, types.CurrencyEUR, q.Currency)

	// 10000.004 * 1.05 = 10500.0042
	assert.Equal(t, "10500.00", q.Base.HT.StringFixed(2))
	assert.Equal(t, "12600.00", q.Base.TTC.StringFixed(2))

	require.Len(t, q.Options, 2)
	assert.Equal(t, "lighting", q.Options[0].ID)
	assert.True(t, q.Options[0].Selected)
	assert.Equal(t, "531.98", q.Options[0].HT.StringFixed(2))
	assert.Equal(t, "638.38", q.Options[0].TTC.StringFixed(2))
	assert.False(t, q.Options[1].Selected)

	assert.Equal(t, "531.98", q.SelectedOptions.HT.StringFixed(2))
	assert.Equal(t, "11031.98", q.Total.HT.StringFixed(2))
	assert.Equal(t, "13238.38", q.Total.TTC.StringFixed(2))
	assert.Equal(t, []string{"cover"}, q.UnknownOptions)
}

func TestBuildNoOptions(t *testing.T) {
	q := Build(&boq.Result{BaseSaleTotal: d("130")}, nil, Settings{VATRate: d("20"), Currency: types.CurrencyCHF})

	assert.Equal(t, types.CurrencyCHF, q.Currency)
	assert.True(t, q.Total.HT.Equal(d("130")))
	assert.True(t, q.Total.TTC.Equal(d("156")))
	assert.True(t, q.SelectedOptions.HT.IsZero())
	assert.Empty(t, q.Options)
}
