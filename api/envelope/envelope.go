// Package envelope - Quote request normalization
// Handlers never price raw input, only normalized envelopes. Two requests
// that mean the same thing produce the same InputHash.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pool-boq/core/quote"
	"pool-boq/core/types"
	"pool-boq/internal/errors"
)

// QuoteEnvelope is the normalized, hashed form of a quote request
type QuoteEnvelope struct {
	Dimensions      types.DimensionSet `json:"dimensions"`
	SelectedOptions []string           `json:"selected_options"`
	Settings        quote.Settings     `json:"settings"`

	// Identity
	InputHash string `json:"input_hash"`

	NormalizedAt time.Time `json:"normalized_at"`
}

// RawInput is an unnormalized quote request
type RawInput struct {
	Shape             string
	Dimensions        map[string]float64
	SelectedOptions   []string
	UnforeseenPercent *decimal.Decimal
	VATRate           *decimal.Decimal
	Currency          string
}

// Normalizer normalizes raw input into envelopes
type Normalizer struct {
	defaults quote.Settings
}

// NewNormalizer creates a normalizer filling unset settings from defaults
func NewNormalizer(defaults quote.Settings) *Normalizer {
	return &Normalizer{defaults: defaults}
}

// Normalize validates raw and returns its deterministic envelope
func (n *Normalizer) Normalize(raw RawInput) (*QuoteEnvelope, error) {
	shape, err := types.ParseShape(strings.TrimSpace(raw.Shape))
	if err != nil {
		return nil, errors.Wrap(errors.TypeInput, "invalid shape", err)
	}
	dims := types.NewDimensionSet(shape, raw.Dimensions)
	if err := dims.Validate(); err != nil {
		return nil, errors.Wrap(errors.TypeInput, "invalid dimensions", err)
	}

	settings, err := n.settings(raw)
	if err != nil {
		return nil, err
	}

	env := &QuoteEnvelope{
		Dimensions:      dims,
		SelectedOptions: normalizeOptions(raw.SelectedOptions),
		Settings:        settings,
		NormalizedAt:    time.Now().UTC(),
	}
	env.InputHash = computeHash(env)
	return env, nil
}

func (n *Normalizer) settings(raw RawInput) (quote.Settings, error) {
	s := n.defaults
	if raw.UnforeseenPercent != nil {
		if raw.UnforeseenPercent.IsNegative() {
			return s, errors.New(errors.TypeInput, "unforeseen_percent must not be negative")
		}
		s.UnforeseenPercent = *raw.UnforeseenPercent
	}
	if raw.VATRate != nil {
		if raw.VATRate.IsNegative() {
			return s, errors.New(errors.TypeInput, "vat_rate must not be negative")
		}
		s.VATRate = *raw.VATRate
	}
	if c := strings.ToUpper(strings.TrimSpace(raw.Currency)); c != "" {
		if len(c) != 3 {
			return s, errors.Newf(errors.TypeInput, "currency %q is not a 3-letter code", raw.Currency)
		}
		s.Currency = types.Currency(c)
	}
	if s.Currency == "" {
		s.Currency = types.CurrencyEUR
	}
	return s, nil
}

// normalizeOptions trims, drops blanks and duplicates, keeping first-seen order
func normalizeOptions(options []string) []string {
	out := make([]string, 0, len(options))
	seen := make(map[string]bool, len(options))
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}

// computeHash creates a deterministic hash of everything that affects the price
func computeHash(env *QuoteEnvelope) string {
	options := append([]string(nil), env.SelectedOptions...)
	sort.Strings(options)

	hashInput := struct {
		Shape      types.Shape        `json:"shape"`
		Dimensions map[string]float64 `json:"dimensions"`
		Options    []string           `json:"options"`
		Unforeseen string             `json:"unforeseen_percent"`
		VAT        string             `json:"vat_rate"`
		Currency   types.Currency     `json:"currency"`
	}{
		Shape:      env.Dimensions.Shape,
		Dimensions: env.Dimensions.Vars(),
		Options:    options,
		Unforeseen: env.Settings.UnforeseenPercent.String(),
		VAT:        env.Settings.VATRate.String(),
		Currency:   env.Settings.Currency,
	}

	// map keys marshal sorted
	data, _ := json.Marshal(hashInput)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash returns the first 12 characters of the hash
func (e *QuoteEnvelope) ShortHash() string {
	if len(e.InputHash) >= 12 {
		return e.InputHash[:12]
	}
	return e.InputHash
}
