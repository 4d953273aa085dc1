// Package cmd provides the CLI commands for pool-boq.
package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pool-boq/adapters/storage"
	"pool-boq/core/engine"
	"pool-boq/core/template"
	"pool-boq/core/types"
	"pool-boq/internal/config"
	"pool-boq/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

// app carries state shared by every command
type app struct {
	cfgFile string
	verbose bool
	builtin bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "pool-boq",
		Short: "Price swimming pools from a bill of quantities",
		Long: `pool-boq turns pool dimensions into a priced, itemised bill of quantities.

Templates, derived variables and the price list are read from the configured
store (sqlite by default); the built-in catalog is used when the store has
nothing for a shape.

Examples:
  pool-boq price --shape rectangular --dim length=8,width=4,depth=1.5
  pool-boq price --option heating --format json pool.hcl
  pool-boq eval "CEIL(surface / 25) + 3" --var surface=32
  pool-boq validate ./templates`,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.init() },
		PersistentPostRun: func(cmd *cobra.Command, args []string) { logging.Sync() },
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (yaml or json)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&a.builtin, "builtin", false, "use the built-in catalog instead of the configured store")

	root.AddCommand(
		newPriceCmd(a),
		newEvalCmd(a),
		newResolveCmd(a),
		newValidateCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newImportPricesCmd(a),
		newMigrateCmd(a),
		newSeedCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
	config.Set(cfg)
	a.cfg = cfg
	a.logger = logging.Named("cli")
	return nil
}

// openStore opens the configured store. Memory stores start seeded so
// one-shot commands have data to work with.
func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.StoreFactory(ctx, a.cfg.Storage, a.logger)
	if err != nil {
		return nil, err
	}
	if storage.Backend(a.cfg.Storage.Backend) == storage.BackendMemory {
		if err := template.Seed(ctx, store); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// repository returns the read path used for pricing, and a close func
func (a *app) repository(ctx context.Context) (template.Repository, func(), error) {
	if a.builtin {
		return template.WithFallback(nil, a.logger, nil), func() {}, nil
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = store.Close() }
	if a.cfg.Storage.Fallback {
		return template.WithFallback(store, a.logger, nil), closeFn, nil
	}
	return store, closeFn, nil
}

func (a *app) engine(repo template.Repository) *engine.Engine {
	return engine.NewEngine(repo, engine.EngineConfig{
		Quote:  a.cfg.Quote.Settings(),
		Logger: a.logger,
	})
}

// parseDimensions turns --dim flags into a validated dimension set
func parseDimensions(shape string, raw map[string]string) (types.DimensionSet, error) {
	s, err := types.ParseShape(shape)
	if err != nil {
		return types.DimensionSet{}, err
	}
	values, err := parseNumbers(raw)
	if err != nil {
		return types.DimensionSet{}, err
	}
	ds := types.NewDimensionSet(s, values)
	return ds, ds.Validate()
}

// parseNumbers accepts "." or "," as the decimal separator
func parseNumbers(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw[k]), ",", "."), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", k, raw[k])
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pool-boq version %s\n", Version)
		},
	}
}
