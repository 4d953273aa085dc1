// Package export reads and writes spreadsheet files: priced quotes for
// customers and price lists for the back office.
package export

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"pool-boq/core/engine"
)

// Sheet names in a quote workbook
const (
	SheetBOQ     = "BOQ"
	SheetSummary = "Summary"
)

var boqHeader = []interface{}{"Description", "Qty", "Unit", "Unit cost HT", "Margin %", "Cost HT", "Sale HT"}

// QuoteWorkbook renders a priced quote as an xlsx file with a line-level
// BOQ sheet and a summary sheet.
func QuoteWorkbook(resp *engine.QuoteResponse) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetBOQ); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}
	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}
	if err := writeBOQ(f, st, resp); err != nil {
		return nil, err
	}
	if err := writeSummary(f, st, resp); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type styles struct {
	title, header, category, money, quantity, subtotal int
}

func newStyles(f *excelize.File) (styles, error) {
	var (
		st  styles
		err error
	)
	qtyFmt := "#,##0.000"
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&st.title, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}},
		{&st.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#1F4E79"}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		}},
		{&st.category, &excelize.Style{Font: &excelize.Font{Bold: true}, Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1}}},
		{&st.money, &excelize.Style{NumFmt: 4}},
		{&st.quantity, &excelize.Style{CustomNumFmt: &qtyFmt}},
		{&st.subtotal, &excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: 4}},
	}
	for _, d := range defs {
		if *d.dst, err = f.NewStyle(d.style); err != nil {
			return st, fmt.Errorf("create style: %w", err)
		}
	}
	return st, nil
}

func writeBOQ(f *excelize.File, st styles, resp *engine.QuoteResponse) error {
	sheet := SheetBOQ
	for col, w := range map[string]float64{"A": 48, "B": 12, "C": 9, "D": 14, "E": 10, "F": 14, "G": 14} {
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set col width %s: %w", col, err)
		}
	}

	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Pool quote (%s)", resp.Shape))
	_ = f.SetCellStyle(sheet, "A1", "A1", st.title)
	_ = f.SetCellValue(sheet, "A2", fmt.Sprintf("Template %s v%d, priced %s", sanitizeCell(resp.TemplateID), resp.TemplateVersion, resp.PricedAt.Format("2006-01-02 15:04 MST")))

	row := 4
	if err := setRow(f, sheet, row, boqHeader); err != nil {
		return err
	}
	_ = f.SetCellStyle(sheet, "A4", "G4", st.header)
	row++

	for _, cat := range resp.Result.Categories {
		name := cat.Name
		if cat.IsOption {
			name += " (option)"
		}
		if err := setRow(f, sheet, row, []interface{}{sanitizeCell(name)}); err != nil {
			return err
		}
		_ = f.SetCellStyle(sheet, cell("A", row), cell("G", row), st.category)
		row++

		for _, l := range cat.Lines {
			desc := "  " + l.Description
			if l.Clamped {
				desc += " (clamped)"
			}
			values := []interface{}{
				sanitizeCell(desc),
				num(l.Quantity),
				sanitizeCell(l.Unit),
				num(l.UnitCost),
				num(l.MarginPercent),
				num(l.LineCost),
				num(l.LineSale),
			}
			if err := setRow(f, sheet, row, values); err != nil {
				return err
			}
			_ = f.SetCellStyle(sheet, cell("B", row), cell("B", row), st.quantity)
			_ = f.SetCellStyle(sheet, cell("D", row), cell("D", row), st.money)
			_ = f.SetCellStyle(sheet, cell("F", row), cell("G", row), st.money)
			row++
		}

		_ = f.SetCellValue(sheet, cell("A", row), "Subtotal")
		_ = f.SetCellValue(sheet, cell("F", row), num(cat.CostTotal))
		_ = f.SetCellValue(sheet, cell("G", row), num(cat.SaleTotal))
		_ = f.SetCellStyle(sheet, cell("A", row), cell("G", row), st.subtotal)
		row += 2
	}

	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 4, TopLeftCell: "A5", ActivePane: "bottomLeft"})
}

func writeSummary(f *excelize.File, st styles, resp *engine.QuoteResponse) error {
	sheet := SheetSummary
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	q := resp.Quote
	_ = f.SetColWidth(sheet, "A", "A", 40)
	_ = f.SetColWidth(sheet, "B", "D", 14)

	rows := [][]interface{}{
		{"Currency", string(q.Currency)},
		{"Unforeseen %", num(q.UnforeseenPercent)},
		{"VAT %", num(q.VATRate)},
		{},
		{"Item", "Selected", "HT", "TTC"},
		{"Base price", "yes", num(q.Base.HT), num(q.Base.TTC)},
	}
	for _, o := range q.Options {
		selected := "no"
		if o.Selected {
			selected = "yes"
		}
		rows = append(rows, []interface{}{sanitizeCell(o.Name), selected, num(o.HT), num(o.TTC)})
	}
	rows = append(rows, []interface{}{"Total", "", num(q.Total.HT), num(q.Total.TTC)})
	for _, u := range q.UnknownOptions {
		rows = append(rows, []interface{}{"Ignored option", sanitizeCell(u)})
	}

	for i, values := range rows {
		if err := setRow(f, sheet, i+1, values); err != nil {
			return err
		}
	}
	_ = f.SetCellStyle(sheet, "A5", "D5", st.header)
	_ = f.SetCellStyle(sheet, "C6", cell("D", 6+len(q.Options)), st.money)
	total := 7 + len(q.Options)
	_ = f.SetCellStyle(sheet, cell("A", total), cell("D", total), st.subtotal)
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	if len(values) == 0 {
		return nil
	}
	if err := f.SetSheetRow(sheet, cell("A", row), &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// num converts for display; workbooks are not a source of truth for money
func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// sanitizeCell stops text cells from being read as formulas
func sanitizeCell(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}
