package hcl

import (
	"context"

	"pool-boq/core/catalog"
	"pool-boq/core/template"
	"pool-boq/core/types"
)

// Import saves every template, variable set and the price list in doc to
// repo. Templates are saved before variables so a half-applied import
// never leaves variables without the template that uses them.
func Import(ctx context.Context, repo template.Repository, doc *Document) error {
	for _, t := range doc.Templates {
		if err := repo.SaveTemplate(ctx, t); err != nil {
			return err
		}
	}
	for _, shape := range doc.Shapes() {
		defs, ok := doc.Variables[shape]
		if !ok {
			continue
		}
		if err := repo.SaveVariables(ctx, shape, defs); err != nil {
			return err
		}
	}
	if len(doc.PriceList) > 0 {
		return repo.SavePriceList(ctx, doc.PriceList)
	}
	return nil
}

// Export reads the full data set for every shape from repo
func Export(ctx context.Context, repo template.Repository) (*Document, error) {
	doc := newDocument()
	for _, shape := range types.Shapes() {
		bundle, err := template.Load(ctx, repo, shape)
		if err != nil {
			return nil, err
		}
		t := bundle.Template
		doc.Templates = append(doc.Templates, &t)
		doc.Variables[shape] = bundle.Variables
		doc.PriceList = bundle.PriceList
	}
	return doc, nil
}

// Defaults returns the built-in data set as a document
func Defaults() *Document {
	doc := newDocument()
	for _, shape := range types.Shapes() {
		t := catalog.Template(shape)
		doc.Templates = append(doc.Templates, &t)
		doc.Variables[shape], _ = catalog.Variables(shape)
	}
	doc.PriceList = catalog.PriceList()
	return doc
}
