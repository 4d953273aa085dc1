package hcl

import (
	"sort"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/shopspring/decimal"
	"github.com/zclconf/go-cty/cty"

	"pool-boq/core/types"
)

// Encode writes templates, variable sets and a price list in the format
// Parse reads. Empty optional attributes are omitted.
func Encode(doc *Document) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	for _, t := range doc.Templates {
		appendTemplate(body, t)
		body.AppendNewline()
	}

	shapes := make([]types.Shape, 0, len(doc.Variables))
	for s := range doc.Variables {
		shapes = append(shapes, s)
	}
	sort.Slice(shapes, func(i, j int) bool { return shapes[i] < shapes[j] })
	for _, s := range shapes {
		appendVariables(body, s, doc.Variables[s])
		body.AppendNewline()
	}

	for _, e := range doc.PriceList {
		b := body.AppendNewBlock("price", []string{e.Reference}).Body()
		setString(b, "label", e.Label)
		setString(b, "unit", e.Unit)
		b.SetAttributeValue("unit_price", numberVal(e.UnitPriceHT))
	}
	return f.Bytes()
}

func appendTemplate(body *hclwrite.Body, t *types.Template) {
	b := body.AppendNewBlock("template", []string{string(t.Shape)}).Body()
	setString(b, "id", t.ID)
	setString(b, "name", t.Name)
	if t.Version != 0 {
		b.SetAttributeValue("version", cty.NumberIntVal(int64(t.Version)))
	}

	for _, c := range t.Categories {
		b.AppendNewline()
		cb := b.AppendNewBlock("category", []string{c.ID}).Body()
		cb.SetAttributeValue("name", cty.StringVal(c.Name))
		if c.IsOption {
			cb.SetAttributeValue("option", cty.True)
		}
		cb.SetAttributeValue("order", cty.NumberIntVal(int64(c.DisplayOrder)))
		appendLines(cb, c.Lines)
		for _, s := range c.Subcategories {
			sb := cb.AppendNewBlock("subcategory", []string{s.ID}).Body()
			sb.SetAttributeValue("name", cty.StringVal(s.Name))
			sb.SetAttributeValue("order", cty.NumberIntVal(int64(s.DisplayOrder)))
			appendLines(sb, s.Lines)
		}
	}
}

func appendLines(body *hclwrite.Body, lines []types.Line) {
	for _, l := range lines {
		b := body.AppendNewBlock("line", []string{l.ID}).Body()
		b.SetAttributeValue("description", cty.StringVal(l.Description))
		setString(b, "unit", l.Unit)
		setString(b, "quantity_formula", l.QuantityFormula)
		setNumber(b, "quantity", l.Quantity)
		setString(b, "unit_cost_formula", l.UnitCostFormula)
		setString(b, "price_ref", l.PriceListReference)
		setNumber(b, "unit_cost", l.UnitCostHT)
		setNumber(b, "margin", l.MarginPercent)
		b.SetAttributeValue("order", cty.NumberIntVal(int64(l.DisplayOrder)))
	}
}

func appendVariables(body *hclwrite.Body, shape types.Shape, defs []types.VariableDefinition) {
	b := body.AppendNewBlock("variables", []string{string(shape)}).Body()
	for _, v := range defs {
		vb := b.AppendNewBlock("variable", []string{v.Name}).Body()
		setString(vb, "id", v.ID)
		vb.SetAttributeValue("formula", cty.StringVal(v.Formula))
		vb.SetAttributeValue("order", cty.NumberIntVal(int64(v.EvaluationOrder)))
		setString(vb, "description", v.Description)
	}
}

func setString(b *hclwrite.Body, name, value string) {
	if value != "" {
		b.SetAttributeValue(name, cty.StringVal(value))
	}
}

func setNumber(b *hclwrite.Body, name string, d decimal.Decimal) {
	if !d.IsZero() {
		b.SetAttributeValue(name, numberVal(d))
	}
}

func numberVal(d decimal.Decimal) cty.Value {
	return cty.MustParseNumberVal(d.String())
}
