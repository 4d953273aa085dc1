// Package api - Request and response types
// Money travels as decimal strings; numbers are accepted on input.
package api

import (
	"github.com/shopspring/decimal"

	"pool-boq/core/diff"
	"pool-boq/core/engine"
	"pool-boq/core/formula"
	"pool-boq/core/guards"
	"pool-boq/core/types"
)

// QuoteRequest is the input to POST /v1/quote
type QuoteRequest struct {
	Shape string `json:"shape"`

	// Dimensions in metres, keyed by dimension name
	Dimensions map[string]float64 `json:"dimensions"`

	// SelectedOptions are option category IDs
	SelectedOptions []string `json:"selected_options,omitempty"`

	// Settings override the server defaults field by field
	Settings *SettingsOverride `json:"settings,omitempty"`
}

// SettingsOverride holds optional quote settings
type SettingsOverride struct {
	UnforeseenPercent *decimal.Decimal `json:"unforeseen_percent,omitempty"`
	VATRate           *decimal.Decimal `json:"vat_rate,omitempty"`
	Currency          string           `json:"currency,omitempty"`
}

// QuoteResponse is the output of POST /v1/quote
type QuoteResponse struct {
	*engine.QuoteResponse
	Metadata *ResponseMetadata `json:"metadata"`
}

// ResponseMetadata contains response metadata
type ResponseMetadata struct {
	RequestID     string `json:"request_id"`
	InputHash     string `json:"input_hash"`
	EngineVersion string `json:"engine_version"`
	DurationMs    int64  `json:"duration_ms"`
}

// EvaluateRequest is the input to POST /v1/evaluate. Variables are
// resolved from Shape and Dimensions first when Shape is set; explicit
// Variables win over resolved ones.
type EvaluateRequest struct {
	Formula    string             `json:"formula"`
	Variables  map[string]float64 `json:"variables,omitempty"`
	Shape      string             `json:"shape,omitempty"`
	Dimensions map[string]float64 `json:"dimensions,omitempty"`

	// Strict reports failures instead of evaluating them to 0
	Strict bool `json:"strict,omitempty"`
}

// EvaluateResponse is the output of POST /v1/evaluate
type EvaluateResponse struct {
	Value       float64              `json:"value"`
	Normalized  string               `json:"normalized,omitempty"`
	Diagnostics []formula.Diagnostic `json:"diagnostics"`
	Error       *ErrorBody           `json:"error,omitempty"`
}

// ValidateRequest is the input to POST /v1/validate: either a stored
// shape or an inline bundle.
type ValidateRequest struct {
	Shape  string       `json:"shape,omitempty"`
	Bundle *BundleInput `json:"bundle,omitempty"`
}

// BundleInput is template data submitted for checking before it is saved
type BundleInput struct {
	Template  types.Template             `json:"template"`
	Variables []types.VariableDefinition `json:"variables"`
	PriceList []types.PriceListEntry     `json:"price_list"`
}

// ValidateResponse is the output of POST /v1/validate
type ValidateResponse struct {
	Valid       bool                `json:"valid"`
	Errors      int                 `json:"errors"`
	Warnings    int                 `json:"warnings"`
	Diagnostics []guards.Diagnostic `json:"diagnostics"`
}

// ShapeInfo describes one supported pool shape
type ShapeInfo struct {
	Shape      types.Shape       `json:"shape"`
	Dimensions []types.Dimension `json:"dimensions"`
}

// ErrorResponse wraps every error body
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is a machine-readable code plus message
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// CompareRequest is the input to POST /v1/compare
type CompareRequest struct {
	Before QuoteRequest `json:"before"`
	After  QuoteRequest `json:"after"`

	// Threshold is the smallest line sale delta reported; default one cent
	Threshold *decimal.Decimal `json:"threshold,omitempty"`
}

// CompareResponse holds both quote totals and the line-level diff
type CompareResponse struct {
	BeforeHash     string          `json:"before_hash"`
	AfterHash      string          `json:"after_hash"`
	BeforeTotalTTC decimal.Decimal `json:"before_total_ttc"`
	AfterTotalTTC  decimal.Decimal `json:"after_total_ttc"`
	TotalDeltaTTC  decimal.Decimal `json:"total_delta_ttc"`
	Diff           *diff.Result    `json:"diff"`
}
