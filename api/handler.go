// Package api - Endpoint handlers
// Handlers wrap the engine. They contain NO pricing logic.
package api

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pool-boq/adapters/export"
	"pool-boq/adapters/hcl"
	"pool-boq/api/envelope"
	"pool-boq/core/diff"
	"pool-boq/core/engine"
	"pool-boq/core/formula"
	"pool-boq/core/guards"
	"pool-boq/core/output"
	"pool-boq/core/template"
	"pool-boq/core/types"
	"pool-boq/internal/errors"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleQuote handles POST /v1/quote. ?format= selects json (default),
// table, markdown or xlsx.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := RequestID(r.Context())

	var req QuoteRequest
	if !s.decode(w, r, &req) {
		return
	}

	env, err := s.normalizer.Normalize(toRawInput(&req))
	entry := envelope.CreateAuditEntry(env, requestID, clientIP(r), r.UserAgent())
	defer func() {
		entry.SetDuration(time.Since(start))
		if err := s.audit.Log(entry); err != nil {
			s.logger.Warn("audit log failed", zap.Error(err))
		}
	}()
	if err != nil {
		entry.MarkFailed(err)
		s.writeFailure(w, r, err)
		return
	}

	// Execute engine (NO PRICING LOGIC HERE)
	resp, err := s.engine.Quote(r.Context(), engine.QuoteRequest{
		Dimensions:      env.Dimensions,
		SelectedOptions: env.SelectedOptions,
		Settings:        &env.Settings,
	})
	if err != nil {
		entry.MarkFailed(err)
		s.writeFailure(w, r, err)
		return
	}
	entry.TotalTTC = resp.Quote.Total.TTC.String()
	w.Header().Set("X-Input-Hash", env.InputHash)

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", string(output.FormatJSON):
		s.writeJSON(w, &QuoteResponse{
			QuoteResponse: resp,
			Metadata: &ResponseMetadata{
				RequestID:     requestID,
				InputHash:     env.InputHash,
				EngineVersion: s.version,
				DurationMs:    time.Since(start).Milliseconds(),
			},
		}, http.StatusOK)
	case "xlsx":
		data, err := export.QuoteWorkbook(resp)
		if err != nil {
			entry.MarkFailed(err)
			s.writeFailure(w, r, errors.Internal("render workbook", err))
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="quote-`+env.ShortHash()+`.xlsx"`)
		_, _ = w.Write(data)
	default:
		f, err := s.formatters.Get(output.Format(format))
		if err != nil {
			entry.MarkFailed(err)
			s.writeError(w, r, string(errors.TypeInput), err.Error(), http.StatusBadRequest)
			return
		}
		var buf bytes.Buffer
		if err := f.Render(&buf, resp); err != nil {
			entry.MarkFailed(err)
			s.writeFailure(w, r, errors.Internal("render quote", err))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

func toRawInput(req *QuoteRequest) envelope.RawInput {
	raw := envelope.RawInput{
		Shape:           req.Shape,
		Dimensions:      req.Dimensions,
		SelectedOptions: req.SelectedOptions,
	}
	if req.Settings != nil {
		raw.UnforeseenPercent = req.Settings.UnforeseenPercent
		raw.VATRate = req.Settings.VATRate
		raw.Currency = req.Settings.Currency
	}
	return raw
}

// handleEvaluate handles POST /v1/evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !s.decode(w, r, &req) {
		return
	}

	vars := formula.Vars{}
	if req.Shape != "" {
		shape, err := types.ParseShape(req.Shape)
		if err != nil {
			s.writeFailure(w, r, errors.Wrap(errors.TypeInput, "invalid shape", err))
			return
		}
		resolved, err := s.engine.Resolve(r.Context(), types.NewDimensionSet(shape, req.Dimensions))
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		vars = resolved
	}
	for name, v := range req.Variables {
		vars[name] = v
	}

	resp := EvaluateResponse{
		Diagnostics: formula.Check(req.Formula, func(name string) bool {
			_, ok := vars.Lookup(name)
			return ok
		}),
	}
	if resp.Diagnostics == nil {
		resp.Diagnostics = []formula.Diagnostic{}
	}
	if expr, err := formula.Parse(req.Formula); err == nil {
		resp.Normalized = expr.String()
	}

	if !req.Strict {
		resp.Value = formula.Evaluate(req.Formula, vars)
		s.writeJSON(w, resp, http.StatusOK)
		return
	}

	v, err := formula.EvaluateStrict(req.Formula, vars)
	if err != nil {
		resp.Error = &ErrorBody{
			Code:      string(errors.TypeOf(err)),
			Message:   err.Error(),
			RequestID: RequestID(r.Context()),
		}
		s.writeJSON(w, resp, statusFor(errors.TypeOf(err)))
		return
	}
	resp.Value = v
	s.writeJSON(w, resp, http.StatusOK)
}

// handleValidate handles POST /v1/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !s.decode(w, r, &req) {
		return
	}

	var resp ValidateResponse
	switch {
	case req.Bundle != nil:
		if _, err := types.ParseShape(string(req.Bundle.Template.Shape)); err != nil {
			s.writeFailure(w, r, errors.Wrap(errors.TypeInput, "invalid template shape", err))
			return
		}
		report := engine.ValidateBundle(&template.Bundle{
			Template:  req.Bundle.Template,
			Variables: req.Bundle.Variables,
			PriceList: req.Bundle.PriceList,
		})
		resp.Diagnostics = report.Diagnostics
		resp.Errors, resp.Warnings = report.Count()
	case req.Shape != "":
		report, err := s.engine.Validate(r.Context(), types.Shape(strings.TrimSpace(req.Shape)))
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		resp.Diagnostics = report.Diagnostics
		resp.Errors, resp.Warnings = report.Count()
	default:
		s.writeError(w, r, string(errors.TypeInput), "shape or bundle is required", http.StatusBadRequest)
		return
	}

	if resp.Diagnostics == nil {
		resp.Diagnostics = []guards.Diagnostic{}
	}
	resp.Valid = resp.Errors == 0
	s.writeJSON(w, resp, http.StatusOK)
}

// handleTemplate handles GET /v1/templates/{shape}. ?format=hcl returns
// the bundle as an HCL document.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	shape, err := types.ParseShape(r.PathValue("shape"))
	if err != nil {
		s.writeFailure(w, r, errors.Wrap(errors.TypeInput, "invalid shape", err))
		return
	}
	bundle, err := template.Load(r.Context(), s.engine.Repository(), shape)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		s.writeJSON(w, bundle, http.StatusOK)
	case "hcl":
		t := bundle.Template
		doc := &hcl.Document{
			Templates: []*types.Template{&t},
			Variables: map[types.Shape][]types.VariableDefinition{shape: bundle.Variables},
			PriceList: bundle.PriceList,
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(hcl.Encode(doc))
	default:
		s.writeError(w, r, string(errors.TypeInput), "unsupported format, use json or hcl", http.StatusBadRequest)
	}
}

// handleShapes handles GET /v1/shapes
func (s *Server) handleShapes(w http.ResponseWriter, r *http.Request) {
	shapes := types.Shapes()
	out := make([]ShapeInfo, 0, len(shapes))
	for _, shape := range shapes {
		out = append(out, ShapeInfo{Shape: shape, Dimensions: shape.Dimensions()})
	}
	s.writeJSON(w, map[string]interface{}{"shapes": out}, http.StatusOK)
}

// handleCompare handles POST /v1/compare: two quotes priced against the
// same stored data, diffed line by line
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if !s.decode(w, r, &req) {
		return
	}

	before, beforeHash, err := s.price(r, &req.Before, "before")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	after, afterHash, err := s.price(r, &req.After, "after")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	threshold := decimal.Zero
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	s.writeJSON(w, &CompareResponse{
		BeforeHash:     beforeHash,
		AfterHash:      afterHash,
		BeforeTotalTTC: before.Quote.Total.TTC,
		AfterTotalTTC:  after.Quote.Total.TTC,
		TotalDeltaTTC:  after.Quote.Total.TTC.Sub(before.Quote.Total.TTC),
		Diff:           diff.NewDiffer(threshold).Diff(before.Result, after.Result),
	}, http.StatusOK)
}

// price normalizes and quotes one side of a comparison
func (s *Server) price(r *http.Request, req *QuoteRequest, side string) (*engine.QuoteResponse, string, error) {
	env, err := s.normalizer.Normalize(toRawInput(req))
	if err != nil {
		return nil, "", errors.Wrapf(errors.TypeOf(err), err, "%s quote", side)
	}
	resp, err := s.engine.Quote(r.Context(), engine.QuoteRequest{
		Dimensions:      env.Dimensions,
		SelectedOptions: env.SelectedOptions,
		Settings:        &env.Settings,
	})
	if err != nil {
		return nil, "", errors.Wrapf(errors.TypeOf(err), err, "%s quote", side)
	}
	return resp, env.InputHash, nil
}
