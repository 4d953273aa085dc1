// Package hcl - HCL authoring format for pool data
// Templates, variable sets, price lists and pool requests can all be
// written as .hcl files and loaded into the engine's data contracts.
//
//	template "rectangular" {
//	  name = "Standard"
//	  category "earthworks" {
//	    name  = "Earthworks"
//	    order = 10
//	    line "earthworks.excavation" {
//	      description      = "Excavation"
//	      unit             = "m3"
//	      quantity_formula = "excavation_volume"
//	      price_ref        = "EXCAVATION_M3"
//	      margin           = 25
//	    }
//	  }
//	}
//
//	variables "rectangular" {
//	  variable "surface" {
//	    formula = "length * width"
//	    order   = 10
//	  }
//	}
//
//	price "EXCAVATION_M3" {
//	  label      = "Mechanical excavation"
//	  unit       = "m3"
//	  unit_price = 32.5
//	}
//
//	pool "rectangular" {
//	  dimensions = { length = 8, width = 4, depth = 1.5 }
//	  options    = ["heating"]
//	}
package hcl

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"pool-boq/core/quote"
	"pool-boq/core/types"
	"pool-boq/internal/errors"
)

// Extension is the file extension ParseDir picks up
const Extension = ".hcl"

// Document is everything decoded from one or more files
type Document struct {
	Templates []*types.Template
	Variables map[types.Shape][]types.VariableDefinition
	PriceList []types.PriceListEntry
	Pools     []Pool
}

// Pool is a pricing request written as a pool block
type Pool struct {
	Dimensions      types.DimensionSet
	SelectedOptions []string

	// Overrides; nil or empty fields keep the caller's defaults
	UnforeseenPercent *decimal.Decimal
	VATRate           *decimal.Decimal
	Currency          types.Currency
}

// Settings returns defaults with the pool's overrides applied
func (p Pool) Settings(defaults quote.Settings) quote.Settings {
	s := defaults
	if p.UnforeseenPercent != nil {
		s.UnforeseenPercent = *p.UnforeseenPercent
	}
	if p.VATRate != nil {
		s.VATRate = *p.VATRate
	}
	if p.Currency != "" {
		s.Currency = p.Currency
	}
	return s
}

type fileSchema struct {
	Templates []templateBlock    `hcl:"template,block"`
	Variables []variableSetBlock `hcl:"variables,block"`
	Prices    []priceBlock       `hcl:"price,block"`
	Pools     []poolBlock        `hcl:"pool,block"`
}

type templateBlock struct {
	Shape      string          `hcl:"shape,label"`
	ID         string          `hcl:"id,optional"`
	Name       string          `hcl:"name,optional"`
	Version    int             `hcl:"version,optional"`
	Categories []categoryBlock `hcl:"category,block"`
}

type categoryBlock struct {
	ID            string             `hcl:"id,label"`
	Name          string             `hcl:"name"`
	Option        bool               `hcl:"option,optional"`
	Order         *int               `hcl:"order,optional"`
	Lines         []lineBlock        `hcl:"line,block"`
	Subcategories []subcategoryBlock `hcl:"subcategory,block"`
}

type subcategoryBlock struct {
	ID    string      `hcl:"id,label"`
	Name  string      `hcl:"name"`
	Order *int        `hcl:"order,optional"`
	Lines []lineBlock `hcl:"line,block"`
}

type lineBlock struct {
	ID              string    `hcl:"id,label"`
	Description     string    `hcl:"description"`
	Unit            string    `hcl:"unit,optional"`
	Quantity        cty.Value `hcl:"quantity,optional"`
	QuantityFormula string    `hcl:"quantity_formula,optional"`
	UnitCost        cty.Value `hcl:"unit_cost,optional"`
	UnitCostFormula string    `hcl:"unit_cost_formula,optional"`
	PriceRef        string    `hcl:"price_ref,optional"`
	Margin          cty.Value `hcl:"margin,optional"`
	Order           *int      `hcl:"order,optional"`
}

type variableSetBlock struct {
	Shape     string          `hcl:"shape,label"`
	Variables []variableBlock `hcl:"variable,block"`
}

type variableBlock struct {
	Name        string `hcl:"name,label"`
	ID          string `hcl:"id,optional"`
	Formula     string `hcl:"formula"`
	Order       int    `hcl:"order,optional"`
	Description string `hcl:"description,optional"`
}

type priceBlock struct {
	Reference string    `hcl:"reference,label"`
	Label     string    `hcl:"label,optional"`
	Unit      string    `hcl:"unit,optional"`
	UnitPrice cty.Value `hcl:"unit_price"`
}

type poolBlock struct {
	Shape             string    `hcl:"shape,label"`
	Dimensions        cty.Value `hcl:"dimensions"`
	Options           []string  `hcl:"options,optional"`
	UnforeseenPercent cty.Value `hcl:"unforeseen_percent,optional"`
	VATRate           cty.Value `hcl:"vat_rate,optional"`
	Currency          string    `hcl:"currency,optional"`
}

// Parse decodes src. filename only labels diagnostics.
func Parse(src []byte, filename string) (*Document, error) {
	p := hclparse.NewParser()
	f, diags := p.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diagError(p, filename, diags)
	}
	doc := newDocument()
	if err := doc.decode(p, f, filename); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseFile reads and decodes one file
func ParseFile(path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeInput, err, "read %s", path)
	}
	return Parse(src, path)
}

// ParseDir decodes every .hcl file in dir (not recursive) into one
// document. Files are read in name order; a later price entry replaces an
// earlier one with the same reference.
func ParseDir(dir string) (*Document, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return nil, errors.Wrapf(errors.TypeInput, err, "list %s", dir)
	}
	if len(matches) == 0 {
		return nil, errors.Newf(errors.TypeInput, "no %s files in %s", Extension, dir)
	}
	sort.Strings(matches)

	p := hclparse.NewParser()
	doc := newDocument()
	for _, path := range matches {
		f, diags := p.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, diagError(p, path, diags)
		}
		if err := doc.decode(p, f, path); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func newDocument() *Document {
	return &Document{Variables: make(map[types.Shape][]types.VariableDefinition)}
}

func (d *Document) decode(p *hclparse.Parser, f *hcl.File, filename string) error {
	var schema fileSchema
	if diags := gohcl.DecodeBody(f.Body, nil, &schema); diags.HasErrors() {
		return diagError(p, filename, diags)
	}

	for _, tb := range schema.Templates {
		t, err := tb.template()
		if err != nil {
			return errors.Wrapf(errors.TypeInput, err, "%s: template %q", filename, tb.Shape)
		}
		d.Templates = append(d.Templates, t)
	}

	for _, vb := range schema.Variables {
		shape, err := types.ParseShape(vb.Shape)
		if err != nil {
			return errors.Wrapf(errors.TypeInput, err, "%s: variables", filename)
		}
		for _, v := range vb.Variables {
			d.Variables[shape] = append(d.Variables[shape], types.VariableDefinition{
				ID:              v.ID,
				Name:            v.Name,
				Formula:         v.Formula,
				EvaluationOrder: v.Order,
				Description:     v.Description,
			})
		}
	}

	for _, pb := range schema.Prices {
		price, err := number(pb.UnitPrice)
		if err != nil {
			return errors.Wrapf(errors.TypeInput, err, "%s: price %q unit_price", filename, pb.Reference)
		}
		d.PriceList = append(d.PriceList, types.PriceListEntry{
			Reference:   pb.Reference,
			Label:       pb.Label,
			Unit:        pb.Unit,
			UnitPriceHT: price,
		})
	}

	for _, pb := range schema.Pools {
		pool, err := pb.pool()
		if err != nil {
			return errors.Wrapf(errors.TypeInput, err, "%s: pool %q", filename, pb.Shape)
		}
		d.Pools = append(d.Pools, pool)
	}
	return nil
}

// Template returns the decoded template for shape
func (d *Document) Template(shape types.Shape) (*types.Template, bool) {
	for _, t := range d.Templates {
		if t.Shape == shape {
			return t, true
		}
	}
	return nil, false
}

// Shapes returns every shape with a template or variable set, sorted
func (d *Document) Shapes() []types.Shape {
	seen := make(map[types.Shape]bool)
	for _, t := range d.Templates {
		seen[t.Shape] = true
	}
	for s := range d.Variables {
		seen[s] = true
	}
	out := make([]types.Shape, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (tb templateBlock) template() (*types.Template, error) {
	shape, err := types.ParseShape(tb.Shape)
	if err != nil {
		return nil, err
	}
	t := &types.Template{
		ID:      tb.ID,
		Name:    tb.Name,
		Shape:   shape,
		Version: tb.Version,
	}
	if t.Name == "" {
		t.Name = string(shape)
	}

	for i, cb := range tb.Categories {
		cat := types.Category{
			ID:           cb.ID,
			Name:         cb.Name,
			IsOption:     cb.Option,
			DisplayOrder: order(cb.Order, i),
		}
		if cat.Lines, err = lines(cb.Lines); err != nil {
			return nil, fmt.Errorf("category %q: %w", cb.ID, err)
		}
		for j, sb := range cb.Subcategories {
			sub := types.Subcategory{ID: sb.ID, Name: sb.Name, DisplayOrder: order(sb.Order, j)}
			if sub.Lines, err = lines(sb.Lines); err != nil {
				return nil, fmt.Errorf("subcategory %q: %w", sb.ID, err)
			}
			cat.Subcategories = append(cat.Subcategories, sub)
		}
		t.Categories = append(t.Categories, cat)
	}
	return t, nil
}

func lines(blocks []lineBlock) ([]types.Line, error) {
	out := make([]types.Line, 0, len(blocks))
	for i, lb := range blocks {
		l := types.Line{
			ID:                 lb.ID,
			Description:        lb.Description,
			Unit:               lb.Unit,
			QuantityFormula:    lb.QuantityFormula,
			UnitCostFormula:    lb.UnitCostFormula,
			PriceListReference: lb.PriceRef,
			DisplayOrder:       order(lb.Order, i),
		}
		var err error
		if l.Quantity, err = number(lb.Quantity); err != nil {
			return nil, fmt.Errorf("line %q quantity: %w", lb.ID, err)
		}
		if l.UnitCostHT, err = number(lb.UnitCost); err != nil {
			return nil, fmt.Errorf("line %q unit_cost: %w", lb.ID, err)
		}
		if l.MarginPercent, err = number(lb.Margin); err != nil {
			return nil, fmt.Errorf("line %q margin: %w", lb.ID, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (pb poolBlock) pool() (Pool, error) {
	shape, err := types.ParseShape(pb.Shape)
	if err != nil {
		return Pool{}, err
	}
	if !pb.Dimensions.IsKnown() || pb.Dimensions.IsNull() {
		return Pool{}, fmt.Errorf("dimensions must be a known object")
	}
	dims, err := convert.Convert(pb.Dimensions, cty.Map(cty.Number))
	if err != nil {
		return Pool{}, fmt.Errorf("dimensions: %w", err)
	}
	values := make(map[string]float64)
	for k, v := range dims.AsValueMap() {
		if v.IsNull() || !v.IsKnown() {
			return Pool{}, fmt.Errorf("dimension %s has no value", k)
		}
		f, _ := v.AsBigFloat().Float64()
		values[k] = f
	}

	pool := Pool{
		Dimensions:      types.NewDimensionSet(shape, values),
		SelectedOptions: pb.Options,
	}

	pool.Currency = types.Currency(strings.ToUpper(strings.TrimSpace(pb.Currency)))
	if !pb.UnforeseenPercent.IsNull() {
		d, err := number(pb.UnforeseenPercent)
		if err != nil {
			return Pool{}, fmt.Errorf("unforeseen_percent: %w", err)
		}
		pool.UnforeseenPercent = &d
	}
	if !pb.VATRate.IsNull() {
		d, err := number(pb.VATRate)
		if err != nil {
			return Pool{}, fmt.Errorf("vat_rate: %w", err)
		}
		pool.VATRate = &d
	}
	return pool, nil
}

// number converts an optional attribute value to a decimal. Absent or
// null values are zero; numeric strings are accepted.
func number(v cty.Value) (decimal.Decimal, error) {
	if v.IsNull() {
		return decimal.Zero, nil
	}
	if !v.IsKnown() {
		return decimal.Zero, fmt.Errorf("value is not known")
	}
	n, err := convert.Convert(v, cty.Number)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.AsBigFloat().Text('f', -1))
}

func order(explicit *int, index int) int {
	if explicit != nil {
		return *explicit
	}
	return (index + 1) * 10
}

func diagError(p *hclparse.Parser, filename string, diags hcl.Diagnostics) error {
	var buf bytes.Buffer
	w := hcl.NewDiagnosticTextWriter(&buf, p.Files(), 0, false)
	_ = w.WriteDiagnostics(diags)
	return errors.Wrap(errors.TypeInput, "invalid HCL in "+filename, fmt.Errorf("%s", strings.TrimSpace(buf.String())))
}
