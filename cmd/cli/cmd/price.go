// Package cmd - price command
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pool-boq/adapters/export"
	"pool-boq/adapters/hcl"
	"pool-boq/adapters/storage"
	"pool-boq/core/engine"
	"pool-boq/core/output"
	"pool-boq/core/quote"
	"pool-boq/core/template"
	"pool-boq/core/types"
)

type priceOptions struct {
	shape      string
	dims       map[string]string
	options    []string
	format     string
	xlsx       string
	vat        string
	unforeseen string
	currency   string
}

func newPriceCmd(a *app) *cobra.Command {
	o := &priceOptions{}
	cmd := &cobra.Command{
		Use:   "price [pool.hcl]",
		Short: "Price a pool",
		Long: `Price one pool given on the command line, or every pool block in an HCL file.

Templates, variables and prices defined in the file override the configured
data for this run only.

Examples:
  pool-boq price --shape rectangular --dim length=8,width=4,depth=1.5
  pool-boq price --shape l_shaped --dim length_la=6,width_la=3,length_lb=4,width_lb=2,depth=1.4 --option cover
  pool-boq price --format markdown --xlsx quote.xlsx pool.hcl`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPrice(cmd, o, args)
		},
	}

	cmd.Flags().StringVarP(&o.shape, "shape", "s", "rectangular", "pool shape (rectangular, l_shaped, t_shaped)")
	cmd.Flags().StringToStringVarP(&o.dims, "dim", "d", nil, "dimensions in metres, name=value")
	cmd.Flags().StringSliceVarP(&o.options, "option", "o", nil, "option category IDs to include")
	cmd.Flags().StringVarP(&o.format, "format", "f", "table", "output format (table, json, markdown)")
	cmd.Flags().StringVar(&o.xlsx, "xlsx", "", "also write the quote to this xlsx file")
	cmd.Flags().StringVar(&o.vat, "vat", "", "VAT rate in percent (default from config)")
	cmd.Flags().StringVar(&o.unforeseen, "unforeseen", "", "unforeseen uplift in percent (default from config)")
	cmd.Flags().StringVar(&o.currency, "currency", "", "currency code (default from config)")
	return cmd
}

func (a *app) runPrice(cmd *cobra.Command, o *priceOptions, args []string) error {
	ctx := cmd.Context()

	formatter, err := output.NewRegistry().Get(output.Format(o.format))
	if err != nil {
		return err
	}

	repo, closeRepo, err := a.repository(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	requests, repo, err := a.priceRequests(ctx, o, args, repo)
	if err != nil {
		return err
	}
	e := a.engine(repo)

	for i, req := range requests {
		resp, err := e.Quote(ctx, req)
		if err != nil {
			return err
		}
		if err := formatter.Render(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
		if o.xlsx != "" {
			path := o.xlsx
			if len(requests) > 1 {
				ext := filepath.Ext(path)
				path = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), i+1, ext)
			}
			if err := writeWorkbook(path, resp); err != nil {
				return err
			}
			a.logger.Info("wrote quote workbook", zap.String("path", path))
		}
	}
	return nil
}

// priceRequests builds the requests for this run. A file argument may also
// carry data, served from a seeded in-memory store layered over repo.
func (a *app) priceRequests(ctx context.Context, o *priceOptions, args []string, repo template.Repository) ([]engine.QuoteRequest, template.Repository, error) {
	defaults := a.cfg.Quote.Settings()
	if err := applySettingFlags(o, &defaults); err != nil {
		return nil, nil, err
	}

	if len(args) == 0 {
		ds, err := parseDimensions(o.shape, o.dims)
		if err != nil {
			return nil, nil, err
		}
		return []engine.QuoteRequest{{Dimensions: ds, SelectedOptions: o.options, Settings: &defaults}}, repo, nil
	}

	doc, err := hcl.ParseFile(args[0])
	if err != nil {
		return nil, nil, err
	}
	if len(doc.Pools) == 0 {
		return nil, nil, fmt.Errorf("%s has no pool blocks", args[0])
	}

	if len(doc.Templates) > 0 || len(doc.Variables) > 0 || len(doc.PriceList) > 0 {
		overlay := storage.NewMemoryStore()
		if err := copyData(ctx, repo, overlay); err != nil {
			return nil, nil, err
		}
		if err := hcl.Import(ctx, overlay, doc); err != nil {
			return nil, nil, err
		}
		repo = overlay
	}

	requests := make([]engine.QuoteRequest, 0, len(doc.Pools))
	for _, p := range doc.Pools {
		settings := p.Settings(defaults)
		options := p.SelectedOptions
		if len(o.options) > 0 {
			options = append(append([]string(nil), options...), o.options...)
		}
		requests = append(requests, engine.QuoteRequest{
			Dimensions:      p.Dimensions,
			SelectedOptions: options,
			Settings:        &settings,
		})
	}
	return requests, repo, nil
}

// copyData copies whatever src has into dst; missing pieces are skipped
func copyData(ctx context.Context, src, dst template.Repository) error {
	for _, shape := range types.Shapes() {
		if t, err := src.LoadTemplate(ctx, shape); err == nil {
			if err := dst.SaveTemplate(ctx, t); err != nil {
				return err
			}
		}
		if defs, err := src.LoadVariables(ctx, shape); err == nil {
			if err := dst.SaveVariables(ctx, shape, defs); err != nil {
				return err
			}
		}
	}
	if prices, err := src.LoadPriceList(ctx); err == nil {
		return dst.SavePriceList(ctx, prices)
	}
	return nil
}

// applySettingFlags overrides s with the --vat, --unforeseen and --currency flags
func applySettingFlags(o *priceOptions, s *quote.Settings) error {
	if o.vat != "" {
		d, err := parseDecimal("vat", o.vat)
		if err != nil {
			return err
		}
		s.VATRate = d
	}
	if o.unforeseen != "" {
		d, err := parseDecimal("unforeseen", o.unforeseen)
		if err != nil {
			return err
		}
		s.UnforeseenPercent = d
	}
	if o.currency != "" {
		s.Currency = types.Currency(strings.ToUpper(strings.TrimSpace(o.currency)))
	}
	return nil
}

func writeWorkbook(path string, resp *engine.QuoteResponse) error {
	data, err := export.QuoteWorkbook(resp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func parseDecimal(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(value), ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %q is not a number", name, value)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("--%s must not be negative", name)
	}
	return d, nil
}
