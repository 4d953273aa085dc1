// Package engine provides the API-primary pricing engine.
// The CLI and HTTP server are thin wrappers around this engine.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pool-boq/core/boq"
	"pool-boq/core/formula"
	"pool-boq/core/guards"
	"pool-boq/core/pricing"
	"pool-boq/core/quote"
	"pool-boq/core/template"
	"pool-boq/core/types"
	"pool-boq/core/variables"
	"pool-boq/internal/errors"
	"pool-boq/internal/logging"
	"pool-boq/internal/metrics"
)

// Engine prices pool quotes. It keeps no per-request state and is safe
// for concurrent use.
type Engine struct {
	repo       template.Repository
	resolver   *variables.Resolver
	aggregator *boq.Aggregator
	logger     *zap.Logger
	metrics    metrics.Observer
	config     EngineConfig
}

// EngineConfig configures the engine
type EngineConfig struct {
	// Quote holds the default caller-side adjustments
	Quote quote.Settings

	// Logger is optional
	Logger *zap.Logger

	// Metrics is optional
	Metrics metrics.Observer
}

// NewEngine creates an engine reading from repo. Wrap repo with
// template.WithFallback to serve the built-in catalog on failures.
func NewEngine(repo template.Repository, config EngineConfig) *Engine {
	logger := logging.OrNop(config.Logger)
	observer := config.Metrics
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &Engine{
		repo:       repo,
		resolver:   variables.NewResolver(logger, observer),
		aggregator: boq.NewAggregator(logger, observer),
		logger:     logger,
		metrics:    observer,
		config:     config,
	}
}

// QuoteRequest is the input to Quote
type QuoteRequest struct {
	// Dimensions are the measurements for one pool
	Dimensions types.DimensionSet `json:"dimensions"`

	// SelectedOptions are option category IDs to add to the total
	SelectedOptions []string `json:"selected_options,omitempty"`

	// Settings overrides the engine defaults when set
	Settings *quote.Settings `json:"settings,omitempty"`
}

// QuoteResponse is the output of Quote
type QuoteResponse struct {
	Shape           types.Shape  `json:"shape"`
	TemplateID      string       `json:"template_id"`
	TemplateVersion int          `json:"template_version"`
	Variables       formula.Vars `json:"variables"`
	Result          *boq.Result  `json:"result"`
	Quote           *quote.Quote `json:"quote"`
	PricedAt        time.Time    `json:"priced_at"`
	Duration        string       `json:"duration"`
}

// Quote validates the dimensions, loads the shape's data, resolves
// variables, prices the template and builds the quote. Only invalid input
// and repository failures are errors; bad formulas price at 0.
func (e *Engine) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	start := time.Now()

	if err := req.Dimensions.Validate(); err != nil {
		return nil, errors.Wrap(errors.TypeInput, "invalid dimensions", err)
	}
	shape := req.Dimensions.Shape

	bundle, err := template.Load(ctx, e.repo, shape)
	if err != nil {
		return nil, err
	}

	vars := e.resolver.ResolveDimensions(req.Dimensions, bundle.Variables)
	result := e.aggregator.Price(bundle.Template.Categories, vars, pricing.NewTable(bundle.PriceList))

	settings := e.config.Quote
	if req.Settings != nil {
		settings = *req.Settings
	}
	q := quote.Build(result, req.SelectedOptions, settings)

	elapsed := time.Since(start)
	e.metrics.PricingRun(string(shape), elapsed)
	e.logger.Debug("priced quote",
		zap.String("shape", string(shape)),
		zap.String("template", bundle.Template.ID),
		zap.String("base_sale_total", result.BaseSaleTotal.String()),
		zap.Int("fallbacks", len(result.Fallbacks)),
		zap.Duration("duration", elapsed),
	)
	if len(q.UnknownOptions) > 0 {
		e.logger.Warn("selected options not in template",
			zap.Strings("options", q.UnknownOptions),
			zap.String("template", bundle.Template.ID),
		)
	}

	return &QuoteResponse{
		Shape:           shape,
		TemplateID:      bundle.Template.ID,
		TemplateVersion: bundle.Template.Version,
		Variables:       vars,
		Result:          result,
		Quote:           q,
		PricedAt:        start.UTC(),
		Duration:        elapsed.String(),
	}, nil
}

// Resolve validates ds and returns its resolved variable context
func (e *Engine) Resolve(ctx context.Context, ds types.DimensionSet) (formula.Vars, error) {
	if err := ds.Validate(); err != nil {
		return nil, errors.Wrap(errors.TypeInput, "invalid dimensions", err)
	}
	defs, err := e.repo.LoadVariables(ctx, ds.Shape)
	if err != nil {
		return nil, err
	}
	return e.resolver.ResolveDimensions(ds, defs), nil
}

// Validate runs the authoring checks against the data stored for shape
func (e *Engine) Validate(ctx context.Context, shape types.Shape) (guards.Report, error) {
	if _, err := types.ParseShape(string(shape)); err != nil {
		return guards.Report{}, errors.Wrap(errors.TypeInput, "invalid shape", err)
	}
	bundle, err := template.Load(ctx, e.repo, shape)
	if err != nil {
		return guards.Report{}, err
	}
	return ValidateBundle(bundle), nil
}

// ValidateBundle runs the authoring checks against bundle
func ValidateBundle(bundle *template.Bundle) guards.Report {
	shape := bundle.Template.Shape
	report := guards.CheckVariables(shape, bundle.Variables)
	report.Merge(guards.CheckTemplate(
		bundle.Template,
		guards.KnownNames(shape, bundle.Variables),
		pricing.NewTable(bundle.PriceList),
	))
	report.Merge(guards.CheckPriceList(bundle.Template, bundle.PriceList))
	return report
}

// Repository returns the engine's repository
func (e *Engine) Repository() template.Repository {
	return e.repo
}

// Settings returns the default quote settings
func (e *Engine) Settings() quote.Settings {
	return e.config.Quote
}
