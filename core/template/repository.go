// Package template defines where templates, variable sets and price lists
// come from. The pricing engine only sees a Repository; storage backends
// live in adapters/storage.
package template

import (
	"context"

	"go.uber.org/zap"

	"pool-boq/core/catalog"
	"pool-boq/core/types"
	"pool-boq/internal/errors"
	"pool-boq/internal/logging"
	"pool-boq/internal/metrics"
)

// ErrNotFound is matched by errors.Is for any NOT_FOUND error
var ErrNotFound = errors.Sentinel(errors.TypeNotFound)

// Repository loads and saves BOQ authoring data
type Repository interface {
	// LoadTemplate returns the current template for shape
	LoadTemplate(ctx context.Context, shape types.Shape) (*types.Template, error)

	// SaveTemplate stores t as the template for t.Shape
	SaveTemplate(ctx context.Context, t *types.Template) error

	// LoadVariables returns the variable definitions for shape
	LoadVariables(ctx context.Context, shape types.Shape) ([]types.VariableDefinition, error)

	// SaveVariables replaces the variable definitions for shape
	SaveVariables(ctx context.Context, shape types.Shape, defs []types.VariableDefinition) error

	// LoadPriceList returns every price list entry
	LoadPriceList(ctx context.Context) ([]types.PriceListEntry, error)

	// SavePriceList replaces the price list
	SavePriceList(ctx context.Context, entries []types.PriceListEntry) error
}

// Bundle is everything one pricing run needs for a shape
type Bundle struct {
	Template  types.Template             `json:"template"`
	Variables []types.VariableDefinition `json:"variables"`
	PriceList []types.PriceListEntry     `json:"price_list"`
}

// Load reads the template, variables and price list for shape
func Load(ctx context.Context, repo Repository, shape types.Shape) (*Bundle, error) {
	t, err := repo.LoadTemplate(ctx, shape)
	if err != nil {
		return nil, err
	}
	defs, err := repo.LoadVariables(ctx, shape)
	if err != nil {
		return nil, err
	}
	prices, err := repo.LoadPriceList(ctx)
	if err != nil {
		return nil, err
	}
	return &Bundle{Template: *t, Variables: defs, PriceList: prices}, nil
}

// Seed saves the built-in defaults for every shape into repo
func Seed(ctx context.Context, repo Repository) error {
	for _, shape := range types.Shapes() {
		t, defs, _, err := catalog.Defaults(shape)
		if err != nil {
			return err
		}
		if err := repo.SaveTemplate(ctx, &t); err != nil {
			return err
		}
		if err := repo.SaveVariables(ctx, shape, defs); err != nil {
			return err
		}
	}
	return repo.SavePriceList(ctx, catalog.PriceList())
}

// FallbackRepository serves the built-in catalog whenever the wrapped
// repository fails or has nothing stored. Saves go straight through.
type FallbackRepository struct {
	repo    Repository
	logger  *zap.Logger
	metrics metrics.Observer
}

// WithFallback wraps repo. A nil repo serves the catalog only.
func WithFallback(repo Repository, logger *zap.Logger, observer metrics.Observer) *FallbackRepository {
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &FallbackRepository{repo: repo, logger: logging.OrNop(logger), metrics: observer}
}

// LoadTemplate implements Repository
func (f *FallbackRepository) LoadTemplate(ctx context.Context, shape types.Shape) (*types.Template, error) {
	if f.repo != nil {
		t, err := f.repo.LoadTemplate(ctx, shape)
		if err == nil {
			return t, nil
		}
		f.fallback("template", shape, err)
	}
	if _, err := types.ParseShape(string(shape)); err != nil {
		return nil, errors.Wrap(errors.TypeInput, "no template", err)
	}
	t := catalog.Template(shape)
	return &t, nil
}

// LoadVariables implements Repository
func (f *FallbackRepository) LoadVariables(ctx context.Context, shape types.Shape) ([]types.VariableDefinition, error) {
	if f.repo != nil {
		defs, err := f.repo.LoadVariables(ctx, shape)
		if err == nil {
			return defs, nil
		}
		f.fallback("variables", shape, err)
	}
	defs, err := catalog.Variables(shape)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInput, "no variables", err)
	}
	return defs, nil
}

// LoadPriceList implements Repository
func (f *FallbackRepository) LoadPriceList(ctx context.Context) ([]types.PriceListEntry, error) {
	if f.repo != nil {
		entries, err := f.repo.LoadPriceList(ctx)
		if err == nil {
			return entries, nil
		}
		f.fallback("price_list", "", err)
	}
	return catalog.PriceList(), nil
}

// SaveTemplate implements Repository
func (f *FallbackRepository) SaveTemplate(ctx context.Context, t *types.Template) error {
	if f.repo == nil {
		return errors.New(errors.TypeStorage, "no repository configured")
	}
	return f.repo.SaveTemplate(ctx, t)
}

// SaveVariables implements Repository
func (f *FallbackRepository) SaveVariables(ctx context.Context, shape types.Shape, defs []types.VariableDefinition) error {
	if f.repo == nil {
		return errors.New(errors.TypeStorage, "no repository configured")
	}
	return f.repo.SaveVariables(ctx, shape, defs)
}

// SavePriceList implements Repository
func (f *FallbackRepository) SavePriceList(ctx context.Context, entries []types.PriceListEntry) error {
	if f.repo == nil {
		return errors.New(errors.TypeStorage, "no repository configured")
	}
	return f.repo.SavePriceList(ctx, entries)
}

func (f *FallbackRepository) fallback(source string, shape types.Shape, err error) {
	f.metrics.RepositoryFallback(source)
	fields := []zap.Field{zap.String("source", source), zap.Error(err)}
	if shape != "" {
		fields = append(fields, zap.String("shape", string(shape)))
	}
	if errors.IsType(err, errors.TypeNotFound) {
		f.logger.Info("nothing stored, using built-in defaults", fields...)
		return
	}
	f.logger.Warn("repository load failed, using built-in defaults", fields...)
}

var _ Repository = (*FallbackRepository)(nil)
