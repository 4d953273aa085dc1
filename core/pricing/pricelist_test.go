package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"pool-boq/core/types"
)

func entry(ref, price string) types.PriceListEntry {
	return types.PriceListEntry{Reference: ref, UnitPriceHT: decimal.RequireFromString(price)}
}

func TestTableUnitPrice(t *testing.T) {
	table := NewTable([]types.PriceListEntry{
		entry("CONCRETE_C25", "120.50"),
		entry("liner-75", "18"),
		entry("", "99"),
		entry("liner-75", "19.5"),
	})

	tests := []struct {
		ref   string
		want  string
		found bool
	}{
		{"CONCRETE_C25", "120.5", true},
		{"concrete_c25", "120.5", true},
		{"  Concrete_C25 ", "120.5", true},
		{"liner-75", "19.5", true},
		{"", "0", false},
		{"   ", "0", false},
		{"missing", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := table.UnitPrice(tt.ref)
			if ok != tt.found {
				t.Fatalf("UnitPrice(%q) found = %v, want %v", tt.ref, ok, tt.found)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("UnitPrice(%q) = %s, want %s", tt.ref, got, tt.want)
			}
		})
	}

	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}
}

func TestTableEntriesSorted(t *testing.T) {
	table := NewTable([]types.PriceListEntry{entry("b", "1"), entry("A", "2"), entry("c", "3")})

	var refs []string
	for _, e := range table.Entries() {
		refs = append(refs, e.Reference)
	}
	want := []string{"A", "b", "c"}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("Entries() order = %v, want %v", refs, want)
		}
	}
}

func TestNilTable(t *testing.T) {
	var table *Table
	if _, ok := table.UnitPrice("x"); ok {
		t.Error("nil table should never resolve")
	}
	if table.Len() != 0 || table.Entries() != nil {
		t.Error("nil table should be empty")
	}
}

func TestChain(t *testing.T) {
	overrides := NewTable([]types.PriceListEntry{entry("liner", "25")})
	base := NewTable([]types.PriceListEntry{entry("liner", "18"), entry("pump", "900")})
	chain := Chain{overrides, nil, base}

	if p, _ := chain.UnitPrice("liner"); !p.Equal(decimal.NewFromInt(25)) {
		t.Errorf("override should win, got %s", p)
	}
	if p, _ := chain.UnitPrice("pump"); !p.Equal(decimal.NewFromInt(900)) {
		t.Errorf("base should resolve pump, got %s", p)
	}
	if _, ok := chain.UnitPrice("heater"); ok {
		t.Error("unknown reference should not resolve")
	}
	if _, ok := Empty.UnitPrice("liner"); ok {
		t.Error("Empty should never resolve")
	}
}
