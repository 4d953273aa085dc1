// Package cmd - data management commands
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pool-boq/adapters/export"
	"pool-boq/adapters/hcl"
	"pool-boq/adapters/storage"
	"pool-boq/core/engine"
	"pool-boq/core/template"
	"pool-boq/core/types"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		out      string
		defaults bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the data set to an HCL file or the price list to xlsx",
		Long: `Write every template, variable set and the price list as HCL, or only the
price list as xlsx when --out ends in .xlsx. Without --out, HCL goes to stdout.`,
		Example: `  pool-boq export --out pools.hcl
  pool-boq export --out prices.xlsx
  pool-boq export --defaults`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var repo template.Repository = template.WithFallback(nil, a.logger, nil)
			if !defaults {
				r, closeRepo, err := a.repository(ctx)
				if err != nil {
					return err
				}
				defer closeRepo()
				repo = r
			}

			if strings.EqualFold(filepath.Ext(out), ".xlsx") {
				prices, err := repo.LoadPriceList(ctx)
				if err != nil {
					return err
				}
				data, err := export.PriceListWorkbook(prices)
				if err != nil {
					return err
				}
				return os.WriteFile(out, data, 0o644)
			}

			doc, err := hcl.Export(ctx, repo)
			if err != nil {
				return err
			}
			data := hcl.Encode(doc)
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (.hcl or .xlsx)")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "export the built-in catalog")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Load templates, variables and prices from HCL into the store",
		Long: `Parse an HCL file, or every .hcl file in a directory, check it, and save it.
Templates are appended as new versions; variable sets and the price list are
replaced. Nothing is saved when the checks report an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := validatePath(ctx, template.WithFallback(store, a.logger, nil), args[0])
			if err != nil {
				return err
			}
			if err := report.Err(); err != nil {
				return err
			}
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d template(s), %d variable set(s), %d price(s) would be imported\n",
					len(doc.Templates), len(doc.Variables), len(doc.PriceList))
				return nil
			}
			if err := hcl.Import(ctx, store, doc); err != nil {
				return err
			}
			for _, t := range doc.Templates {
				fmt.Fprintf(cmd.OutOrStdout(), "template %s (%s) saved as version %d\n", t.ID, t.Shape, t.Version)
			}
			a.logger.Info("imported",
				zap.Int("templates", len(doc.Templates)),
				zap.Int("variable_sets", len(doc.Variables)),
				zap.Int("prices", len(doc.PriceList)),
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "check without saving")
	return cmd
}

func newImportPricesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import-prices <prices.xlsx>",
		Short: "Replace the price list from an xlsx sheet",
		Long: `Read the active sheet of an xlsx file whose header names at least the
reference and unit_price_ht columns (label and unit are optional) and replace
the stored price list with it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := export.ReadPriceList(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SavePriceList(ctx, entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d price(s) imported\n", len(entries))

			// references the new list no longer carries
			report, err := validateStored(ctx, engine.NewEngine(template.WithFallback(store, a.logger, nil), engine.EngineConfig{}), "")
			if err != nil {
				return err
			}
			for _, d := range report.Diagnostics {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", d.Severity, d.Location, d.Message)
			}
			return nil
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured store",
		Long: `Bring the sqlite or postgres schema up to date. Opening a store migrates
it as well; this command does only that and reports the result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.StoreFactory(cmd.Context(), a.cfg.Storage, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if s, ok := store.(*storage.SQLiteStore); ok {
				version, err := s.SchemaVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema at version %d\n", version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", a.cfg.Storage.Backend)
			return nil
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store the built-in catalog",
		Long: `Save the built-in templates, variables and price list to the configured
store. Shapes that already have a template are left alone unless --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if force {
				if err := template.Seed(ctx, store); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "catalog stored")
				return nil
			}

			doc := hcl.Defaults()
			pending := &hcl.Document{Variables: map[types.Shape][]types.VariableDefinition{}}
			for _, t := range doc.Templates {
				if _, err := store.LoadTemplate(ctx, t.Shape); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: template present, skipped\n", t.Shape)
					continue
				}
				pending.Templates = append(pending.Templates, t)
				pending.Variables[t.Shape] = doc.Variables[t.Shape]
			}
			if _, err := store.LoadPriceList(ctx); err != nil {
				pending.PriceList = doc.PriceList
			}
			if err := hcl.Import(ctx, store, pending); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d template(s) stored\n", len(pending.Templates))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "store the catalog even over existing data")
	return cmd
}
