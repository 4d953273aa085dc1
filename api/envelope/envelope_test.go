package envelope

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pool-boq/core/quote"
	"pool-boq/core/types"
	poolerrors "pool-boq/internal/errors"
)

func ptr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(quote.Settings{VATRate: decimal.NewFromInt(20)})

	env, err := n.Normalize(RawInput{
		Shape:           " L_Shaped ",
		Dimensions:      map[string]float64{"LENGTH_LA": 6, "width_la": 3, "length_lb": 4, "width_lb": 2, "depth": 1.4},
		SelectedOptions: []string{" cover", "", "cover", "heating"},
		Currency:        "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, types.ShapeLShaped, env.Dimensions.Shape)
	assert.Equal(t, 6.0, env.Dimensions.Values["length_la"])
	assert.Equal(t, []string{"cover", "heating"}, env.SelectedOptions)
	assert.Equal(t, types.CurrencyUSD, env.Settings.Currency)
	assert.Equal(t, "20", env.Settings.VATRate.String())
	assert.Len(t, env.InputHash, 64)
	assert.Equal(t, env.InputHash[:12], env.ShortHash())
}

func TestNormalizeDefaultsCurrency(t *testing.T) {
	env, err := NewNormalizer(quote.Settings{}).Normalize(RawInput{
		Shape:      "rectangular",
		Dimensions: map[string]float64{"length": 1, "width": 1, "depth": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, types.CurrencyEUR, env.Settings.Currency)
}

func TestHashIgnoresPresentation(t *testing.T) {
	n := NewNormalizer(quote.Settings{})
	base := RawInput{
		Shape:           "rectangular",
		Dimensions:      map[string]float64{"length": 8, "width": 4, "depth": 1.5},
		SelectedOptions: []string{"cover", "lighting"},
	}
	a, err := n.Normalize(base)
	require.NoError(t, err)

	reordered := base
	reordered.SelectedOptions = []string{"lighting", "cover", "cover"}
	reordered.Dimensions = map[string]float64{"Depth": 1.5, "width": 4, "length": 8}
	b, err := n.Normalize(reordered)
	require.NoError(t, err)
	assert.Equal(t, a.InputHash, b.InputHash)

	changed := base
	changed.VATRate = ptr("10")
	c, err := n.Normalize(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a.InputHash, c.InputHash)
}

func TestNormalizeErrors(t *testing.T) {
	dims := map[string]float64{"length": 8, "width": 4, "depth": 1.5}
	tests := []struct {
		name string
		raw  RawInput
		want string
	}{
		{"shape", RawInput{Shape: "oval", Dimensions: dims}, "invalid shape"},
		{"dimensions", RawInput{Shape: "rectangular", Dimensions: map[string]float64{"length": 8}}, "missing dimension"},
		{"vat", RawInput{Shape: "rectangular", Dimensions: dims, VATRate: ptr("-1")}, "vat_rate"},
		{"unforeseen", RawInput{Shape: "rectangular", Dimensions: dims, UnforeseenPercent: ptr("-5")}, "unforeseen_percent"},
		{"currency", RawInput{Shape: "rectangular", Dimensions: dims, Currency: "euros"}, "3-letter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNormalizer(quote.Settings{}).Normalize(tt.raw)
			require.Error(t, err)
			assert.True(t, poolerrors.IsType(err, poolerrors.TypeInput))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAuditEntry(t *testing.T) {
	entry := CreateAuditEntry(nil, "req-1", "10.0.0.1", "curl")
	assert.True(t, entry.Success)
	assert.Empty(t, entry.InputHash)

	entry.MarkFailed(errors.New("boom"))
	assert.False(t, entry.Success)
	assert.Equal(t, "boom", entry.Error)
	assert.NoError(t, NewZapAuditLogger(nil).Log(entry))
}
