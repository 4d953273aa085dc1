// Package cmd - validate command
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"pool-boq/adapters/hcl"
	"pool-boq/core/engine"
	"pool-boq/core/guards"
	"pool-boq/core/output"
	"pool-boq/core/template"
	"pool-boq/core/types"
)

func newValidateCmd(a *app) *cobra.Command {
	var (
		shape  string
		format string
	)
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Check templates, variables and prices for authoring mistakes",
		Long: `Run the authoring checks: formula syntax, unknown variables, forward
references, unresolved price references, margins and duplicate IDs.

With a path, the HCL files there are checked; anything they do not define is
taken from the configured store. Without a path the stored data is checked.
Exits non-zero when any error is found; warnings alone pass.`,
		Example: `  pool-boq validate
  pool-boq validate --shape l_shaped
  pool-boq validate ./templates --format markdown`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := output.NewRegistry().Get(output.Format(format))
			if err != nil {
				return err
			}
			repo, closeRepo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			var report guards.Report
			if len(args) == 1 {
				report, err = validatePath(cmd.Context(), repo, args[0])
			} else {
				report, err = validateStored(cmd.Context(), a.engine(repo), shape)
			}
			if err != nil {
				return err
			}
			if err := formatter.RenderReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return report.Err()
		},
	}
	cmd.Flags().StringVarP(&shape, "shape", "s", "", "only check this shape")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json, markdown)")
	return cmd
}

func validateStored(ctx context.Context, e *engine.Engine, shape string) (guards.Report, error) {
	shapes := types.Shapes()
	if shape != "" {
		s, err := types.ParseShape(shape)
		if err != nil {
			return guards.Report{}, err
		}
		shapes = []types.Shape{s}
	}

	var report guards.Report
	for _, s := range shapes {
		r, err := e.Validate(ctx, s)
		if err != nil {
			return report, err
		}
		report.Merge(r)
	}
	return report, nil
}

// validatePath checks every shape the HCL at path defines, filling
// whatever it leaves out from repo
func validatePath(ctx context.Context, repo template.Repository, path string) (guards.Report, error) {
	doc, err := readDocument(path)
	if err != nil {
		return guards.Report{}, err
	}

	var report guards.Report
	for _, shape := range doc.Shapes() {
		bundle := &template.Bundle{}
		if t, ok := doc.Template(shape); ok {
			bundle.Template = *t
		} else if bundle.Template, err = loadTemplate(ctx, repo, shape); err != nil {
			return report, err
		}
		if defs, ok := doc.Variables[shape]; ok {
			bundle.Variables = defs
		} else if bundle.Variables, err = repo.LoadVariables(ctx, shape); err != nil {
			return report, err
		}
		if len(doc.PriceList) > 0 {
			bundle.PriceList = doc.PriceList
		} else if bundle.PriceList, err = repo.LoadPriceList(ctx); err != nil {
			return report, err
		}
		report.Merge(engine.ValidateBundle(bundle))
	}
	return report, nil
}

func loadTemplate(ctx context.Context, repo template.Repository, shape types.Shape) (types.Template, error) {
	t, err := repo.LoadTemplate(ctx, shape)
	if err != nil {
		return types.Template{}, err
	}
	return *t, nil
}

// readDocument parses a single file or every .hcl file in a directory
func readDocument(path string) (*hcl.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return hcl.ParseDir(path)
	}
	return hcl.ParseFile(path)
}
