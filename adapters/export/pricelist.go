package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"pool-boq/core/types"
	"pool-boq/internal/errors"
)

// SheetPrices is the sheet PriceListWorkbook writes
const SheetPrices = "Prices"

// Price list columns, matched case-insensitively on import
const (
	ColReference = "reference"
	ColLabel     = "label"
	ColUnit      = "unit"
	ColUnitPrice = "unit_price_ht"
)

// PriceListWorkbook writes entries as an xlsx sheet ReadPriceList accepts
func PriceListWorkbook(entries []types.PriceListEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetPrices); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}
	header := []interface{}{ColReference, ColLabel, ColUnit, ColUnitPrice}
	if err := f.SetSheetRow(SheetPrices, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, e := range entries {
		// prices go out as text so no precision is lost on the way back in
		row := []interface{}{sanitizeCell(e.Reference), sanitizeCell(e.Label), sanitizeCell(e.Unit), e.UnitPriceHT.String()}
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(SheetPrices, cellName, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(SheetPrices, "A", "A", 22)
	_ = f.SetColWidth(SheetPrices, "B", "B", 40)

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadPriceList reads the active sheet of an xlsx file. The first row is
// a header naming at least the reference and unit_price_ht columns, in
// any order. Blank rows are skipped; a comma is accepted as the decimal
// separator. Every problem is reported with its row number.
func ReadPriceList(r io.Reader) ([]types.PriceListEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInput, "not a readable xlsx file", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.Wrap(errors.TypeInput, "read sheet "+sheet, err)
	}
	if len(rows) == 0 {
		return nil, errors.Newf(errors.TypeInput, "sheet %s is empty", sheet)
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{ColReference, ColUnitPrice} {
		if _, ok := cols[required]; !ok {
			return nil, errors.Newf(errors.TypeInput, "missing column %q in header", required)
		}
	}

	get := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(row[i], "'"))
	}

	var (
		entries  []types.PriceListEntry
		problems []string
		seen     = make(map[string]int)
	)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		line := i + 1
		ref := get(row, ColReference)
		priceStr := get(row, ColUnitPrice)
		if ref == "" && priceStr == "" {
			continue
		}
		if ref == "" {
			problems = append(problems, fmt.Sprintf("row %d: empty reference", line))
			continue
		}
		if prev, ok := seen[strings.ToLower(ref)]; ok {
			problems = append(problems, fmt.Sprintf("row %d: reference %q already on row %d", line, ref, prev))
			continue
		}
		seen[strings.ToLower(ref)] = line

		price, err := decimal.NewFromString(strings.ReplaceAll(priceStr, ",", "."))
		if err != nil || price.IsNegative() {
			problems = append(problems, fmt.Sprintf("row %d: invalid unit price %q", line, priceStr))
			continue
		}
		entries = append(entries, types.PriceListEntry{
			Reference:   ref,
			Label:       get(row, ColLabel),
			Unit:        get(row, ColUnit),
			UnitPriceHT: price,
		})
	}

	if len(problems) > 0 {
		return nil, errors.Newf(errors.TypeInput, "invalid price list: %s", strings.Join(problems, "; "))
	}
	return entries, nil
}
