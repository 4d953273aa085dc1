package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pool-boq/adapters/storage"
	"pool-boq/api/envelope"
	"pool-boq/core/engine"
	"pool-boq/core/quote"
	"pool-boq/core/template"
	"pool-boq/internal/metrics"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []envelope.AuditEntry
}

func (a *recordingAudit) Log(e envelope.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func newTestServer(t *testing.T, seed bool) (*Server, *recordingAudit) {
	t.Helper()
	store := storage.NewMemoryStore()
	if seed {
		require.NoError(t, template.Seed(context.Background(), store))
	}
	e := engine.NewEngine(store, engine.EngineConfig{
		Quote: quote.Settings{UnforeseenPercent: decimal.NewFromInt(5), VATRate: decimal.NewFromInt(20)},
	})
	audit := &recordingAudit{}
	return NewServer(e, Options{Version: "test", Audit: audit, Metrics: metrics.New().Handler()}), audit
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const rectangularQuote = `{
	"shape": "rectangular",
	"dimensions": {"length": 8, "width": 4, "depth": 1.5},
	"selected_options": ["cover"]
}`

func TestHealthAndVersion(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeMap(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, s, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decodeMap(t, rec)["version"])

	rec = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestQuote(t *testing.T) {
	s, audit := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/v1/quote", rectangularQuote)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeMap(t, rec)
	assert.Equal(t, "rectangular", body["shape"])
	assert.Equal(t, "default-rectangular", body["template_id"])

	meta := body["metadata"].(map[string]any)
	assert.Len(t, meta["input_hash"], 64)
	assert.Equal(t, "test", meta["engine_version"])
	assert.Equal(t, rec.Header().Get("X-Input-Hash"), meta["input_hash"])

	q := body["quote"].(map[string]any)
	assert.Equal(t, "EUR", q["currency"])
	assert.Equal(t, "20", q["vat_rate"])

	require.Len(t, audit.entries, 1)
	assert.True(t, audit.entries[0].Success)
	assert.Equal(t, "rectangular", audit.entries[0].Shape)
	assert.NotEmpty(t, audit.entries[0].TotalTTC)
}

func TestQuoteSettingsOverride(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/v1/quote", `{
		"shape": "rectangular",
		"dimensions": {"length": 8, "width": 4, "depth": 1.5},
		"settings": {"vat_rate": "5.5", "currency": "chf"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	q := decodeMap(t, rec)["quote"].(map[string]any)
	assert.Equal(t, "5.5", q["vat_rate"])
	assert.Equal(t, "5", q["unforeseen_percent"], "unset fields keep the server default")
	assert.Equal(t, "CHF", q["currency"])
}

func TestQuoteEquivalentRequestsShareHash(t *testing.T) {
	s, _ := newTestServer(t, true)

	a := do(t, s, http.MethodPost, "/v1/quote", `{
		"shape": "rectangular",
		"dimensions": {"length": 8, "width": 4, "depth": 1.5},
		"selected_options": ["cover", "heating"]
	}`)
	b := do(t, s, http.MethodPost, "/v1/quote", `{
		"shape": " rectangular ",
		"dimensions": {"Depth": 1.5, "WIDTH": 4, "length": 8},
		"selected_options": ["heating", " cover", "cover", ""]
	}`)
	require.Equal(t, http.StatusOK, a.Code)
	require.Equal(t, http.StatusOK, b.Code, b.Body.String())
	assert.Equal(t, a.Header().Get("X-Input-Hash"), b.Header().Get("X-Input-Hash"))

	c := do(t, s, http.MethodPost, "/v1/quote", rectangularQuote)
	assert.NotEqual(t, a.Header().Get("X-Input-Hash"), c.Header().Get("X-Input-Hash"))
}

func TestQuoteErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode string
		status   int
	}{
		{"bad json", "/v1/quote", `{`, "INVALID_JSON", http.StatusBadRequest},
		{"unknown shape", "/v1/quote", `{"shape":"oval","dimensions":{}}`, "INPUT_ERROR", http.StatusBadRequest},
		{"missing dimension", "/v1/quote", `{"shape":"rectangular","dimensions":{"length":8,"width":4}}`, "INPUT_ERROR", http.StatusBadRequest},
		{"negative dimension", "/v1/quote", `{"shape":"rectangular","dimensions":{"length":-8,"width":4,"depth":1}}`, "INPUT_ERROR", http.StatusBadRequest},
		{"negative vat", "/v1/quote", `{"shape":"rectangular","dimensions":{"length":8,"width":4,"depth":1},"settings":{"vat_rate":-1}}`, "INPUT_ERROR", http.StatusBadRequest},
		{"bad currency", "/v1/quote", `{"shape":"rectangular","dimensions":{"length":8,"width":4,"depth":1},"settings":{"currency":"euro"}}`, "INPUT_ERROR", http.StatusBadRequest},
		{"unknown format", "/v1/quote?format=pdf", rectangularQuote, "INPUT_ERROR", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, audit := newTestServer(t, true)
			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)

			if tt.wantCode != "INVALID_JSON" {
				require.Len(t, audit.entries, 1)
				assert.False(t, audit.entries[0].Success)
			}
		})
	}
}

func TestQuoteNotFoundWithoutData(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(t, s, http.MethodPost, "/v1/quote", rectangularQuote)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuoteFormats(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/v1/quote?format=xlsx", rectangularQuote)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "quote-")

	rec = do(t, s, http.MethodPost, "/v1/quote?format=markdown", rectangularQuote)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "Pool quote (rectangular)")
	assert.Contains(t, rec.Body.String(), "Automatic cover")
}

func TestEvaluate(t *testing.T) {
	s, _ := newTestServer(t, true)

	tests := []struct {
		name      string
		body      string
		status    int
		value     float64
		wantKinds []string
	}{
		{"variables", `{"formula":"CEIL(length * 2.1)","variables":{"length":3}}`, http.StatusOK, 7, nil},
		{"resolved from shape", `{"formula":"surface","shape":"rectangular","dimensions":{"length":8,"width":4,"depth":1.5}}`, http.StatusOK, 32, nil},
		{"explicit variable wins", `{"formula":"surface","shape":"rectangular","dimensions":{"length":8,"width":4,"depth":1.5},"variables":{"surface":1}}`, http.StatusOK, 1, nil},
		{"lenient unknown identifier", `{"formula":"lenght * 2"}`, http.StatusOK, 0, []string{"unknown_identifier"}},
		{"strict unknown identifier", `{"formula":"lenght * 2","strict":true}`, http.StatusUnprocessableEntity, 0, []string{"unknown_identifier"}},
		{"literal zero divisor", `{"formula":"4 / 0"}`, http.StatusOK, 0, []string{"division_by_zero"}},
		{"bad shape", `{"formula":"1","shape":"oval"}`, http.StatusBadRequest, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/evaluate", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusBadRequest {
				return
			}

			var resp EvaluateResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.InDelta(t, tt.value, resp.Value, 1e-9)

			var kinds []string
			for _, d := range resp.Diagnostics {
				kinds = append(kinds, string(d.Kind))
			}
			assert.Equal(t, tt.wantKinds, kinds)
			if tt.status == http.StatusUnprocessableEntity {
				require.NotNil(t, resp.Error)
				assert.Equal(t, "FORMULA_ERROR", resp.Error.Code)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/v1/validate", `{"shape":"l_shaped"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Diagnostics)

	rec = do(t, s, http.MethodPost, "/v1/validate", `{"bundle":{
		"template":{"id":"t","name":"Draft","shape":"rectangular","categories":[
			{"id":"shell","name":"Shell","lines":[
				{"id":"l1","description":"Concrete","quantity_formula":"surface * (","unit_cost_ht":"10"}
			]}
		]},
		"variables":[{"name":"surface","formula":"length * width","evaluation_order":1}],
		"price_list":[]
	}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = ValidateResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Positive(t, resp.Errors)

	rec = do(t, s, http.MethodPost, "/v1/validate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/validate", `{"shape":"oval"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTemplate(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(t, s, http.MethodGet, "/v1/templates/t_shaped", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tpl := decodeMap(t, rec)["template"].(map[string]any)
	assert.Equal(t, "default-t_shaped", tpl["id"])

	rec = do(t, s, http.MethodGet, "/v1/templates/rectangular?format=hcl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `template "rectangular"`)
	assert.Contains(t, rec.Body.String(), `price "EXCAVATION_M3"`)

	rec = do(t, s, http.MethodGet, "/v1/templates/oval", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	empty, _ := newTestServer(t, false)
	rec = do(t, empty, http.MethodGet, "/v1/templates/rectangular", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShapes(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := do(t, s, http.MethodGet, "/v1/shapes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeMap(t, rec)["shapes"], 3)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := do(t, s, http.MethodGet, "/v1/quote", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	store := storage.NewMemoryStore()
	e := engine.NewEngine(template.WithFallback(store, nil, nil), engine.EngineConfig{})
	s := NewServer(e, Options{AllowedOrigins: []string{"https://configurator.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/quote", nil)
	req.Header.Set("Origin", "https://configurator.example")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://configurator.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestFallbackServesCatalog(t *testing.T) {
	e := engine.NewEngine(template.WithFallback(storage.NewMemoryStore(), nil, nil), engine.EngineConfig{})
	s := NewServer(e, Options{})
	rec := do(t, s, http.MethodPost, "/v1/quote", rectangularQuote)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompare(t *testing.T) {
	s, _ := newTestServer(t, true)

	body := `{
		"before": {"shape": "rectangular", "dimensions": {"length": 8, "width": 4, "depth": 1.5}},
		"after": {"shape": "rectangular", "dimensions": {"length": 10, "width": 4, "depth": 1.5}, "selected_options": ["cover"]}
	}`
	rec := do(t, s, http.MethodPost, "/v1/compare", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		BeforeHash    string          `json:"before_hash"`
		AfterHash     string          `json:"after_hash"`
		TotalDeltaTTC decimal.Decimal `json:"total_delta_ttc"`
		Diff          struct {
			BaseDelta decimal.Decimal            `json:"base_delta"`
			Options   map[string]decimal.Decimal `json:"options"`
			Added     []map[string]any           `json:"added"`
			Removed   []map[string]any           `json:"removed"`
			Changed   []struct {
				Reasons []string `json:"reasons"`
			} `json:"changed"`
		} `json:"diff"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.NotEqual(t, resp.BeforeHash, resp.AfterHash)
	assert.True(t, resp.Diff.BaseDelta.IsPositive())
	assert.True(t, resp.TotalDeltaTTC.IsPositive())
	assert.Empty(t, resp.Diff.Added)
	assert.Empty(t, resp.Diff.Removed)
	require.NotEmpty(t, resp.Diff.Changed)
	byQuantity := 0
	for _, c := range resp.Diff.Changed {
		if slices.Contains(c.Reasons, "quantity") {
			byQuantity++
		}
	}
	assert.Positive(t, byQuantity)
	assert.Contains(t, resp.Diff.Options, "cover")
}

func TestCompareIdenticalQuotes(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/v1/compare", `{"before": `+rectangularQuote+`, "after": `+rectangularQuote+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeMap(t, rec)
	assert.Equal(t, out["before_hash"], out["after_hash"])
	d := out["diff"].(map[string]any)
	assert.Empty(t, d["changed"])
	assert.Greater(t, d["unchanged_count"], 0.0)
}

func TestCompareErrors(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/v1/compare", `{"before": {"shape": "oval"}, "after": `+rectangularQuote+`}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "before quote")

	rec = do(t, s, http.MethodPost, "/v1/compare", `{"before": `+rectangularQuote+`, "after": {"shape": "rectangular", "dimensions": {"length": -1, "width": 4, "depth": 1.5}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "after quote")

	s, _ = newTestServer(t, false)
	rec = do(t, s, http.MethodPost, "/v1/compare", `{"before": `+rectangularQuote+`, "after": `+rectangularQuote+`}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
