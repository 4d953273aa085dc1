// Package pricing - Price list lookup for template lines
// A line that carries a price-list reference and no unit cost formula gets
// its unit cost from here.
package pricing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"pool-boq/core/types"
)

// PriceList resolves a reference to a unit price excluding tax
type PriceList interface {
	// UnitPrice returns the price and whether the reference resolved
	UnitPrice(reference string) (decimal.Decimal, bool)
}

// Table is an immutable in-memory price list. References match
// case-insensitively and surrounding whitespace is ignored.
type Table struct {
	entries map[string]types.PriceListEntry
}

// NewTable builds a table; a later entry with the same reference wins
func NewTable(entries []types.PriceListEntry) *Table {
	t := &Table{entries: make(map[string]types.PriceListEntry, len(entries))}
	for _, e := range entries {
		key := normalize(e.Reference)
		if key == "" {
			continue
		}
		t.entries[key] = e
	}
	return t
}

// UnitPrice implements PriceList
func (t *Table) UnitPrice(reference string) (decimal.Decimal, bool) {
	e, ok := t.Entry(reference)
	if !ok {
		return decimal.Zero, false
	}
	return e.UnitPriceHT, true
}

// Entry returns the full entry for a reference
func (t *Table) Entry(reference string) (types.PriceListEntry, bool) {
	if t == nil {
		return types.PriceListEntry{}, false
	}
	key := normalize(reference)
	if key == "" {
		return types.PriceListEntry{}, false
	}
	e, ok := t.entries[key]
	return e, ok
}

// Entries returns every entry sorted by reference
func (t *Table) Entries() []types.PriceListEntry {
	if t == nil {
		return nil
	}
	out := make([]types.PriceListEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return normalize(out[i].Reference) < normalize(out[j].Reference)
	})
	return out
}

// Len returns the number of entries
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Chain consults each list in turn; the first that resolves wins.
// Put override lists before the base list.
type Chain []PriceList

// UnitPrice implements PriceList
func (c Chain) UnitPrice(reference string) (decimal.Decimal, bool) {
	for _, pl := range c {
		if pl == nil {
			continue
		}
		if p, ok := pl.UnitPrice(reference); ok {
			return p, true
		}
	}
	return decimal.Zero, false
}

// Empty never resolves
var Empty PriceList = Chain(nil)

func normalize(reference string) string {
	return strings.ToLower(strings.TrimSpace(reference))
}
