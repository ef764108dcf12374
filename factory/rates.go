/*
Package factory provides JSON to Go rate configuration conversion.

PURPOSE:
  Converts JSON rate documents into payroll.RateConfig and back. The school
  keeps its yearly rate sheet as a JSON file; the admin CLI and the
  /api/config/rates endpoint import and export it through this package.

JSON SCHEMA:
  {
    "formula": "(valor_profesor + valor_alumnos) * horas",
    "base_rates": [
      {"scale": 1, "hourly_rate": "5200.00"}
    ],
    "bands": [
      {"scale": 1, "min": 1, "max": 4, "hourly_rate": "800"},
      {"scale": 1, "min": 5, "max": 8, "hourly_rate": "1100"}
    ]
  }

  Rates may be JSON strings or numbers; they are parsed as decimals.

VALIDATION:
  Errors (document rejected):
  - malformed JSON, unknown scale, max < min, negative rates
  Warnings (document accepted):
  - formula does not parse (items will price at zero)
  - student counts in 1..99 not covered by any band of a scale

USAGE:
  f := factory.NewRateFactory()
  cfg, warnings, err := f.ParseRates(jsonString)
  ...
  err = store.ReplaceRateConfig(ctx, cfg)

SEE ALSO:
  - payroll/rates.go: RateConfig
  - formula/formula.go: expression syntax
*/
package factory

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/escuelademusica/liquidaciones/formula"
	"github.com/escuelademusica/liquidaciones/payroll"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RateConfigJSON is the JSON representation of the rate configuration.
type RateConfigJSON struct {
	Formula   string         `json:"formula"`
	BaseRates []BaseRateJSON `json:"base_rates"`
	Bands     []BandJSON     `json:"bands"`
}

// BaseRateJSON is one base rate.
type BaseRateJSON struct {
	Scale      int             `json:"scale"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

// BandJSON is one student band.
type BandJSON struct {
	ID         int64           `json:"id,omitempty"` // informational on export, ignored on import
	Scale      int             `json:"scale"`
	Min        int             `json:"min"`
	Max        int             `json:"max"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

// =============================================================================
// RATE FACTORY
// =============================================================================

// RateFactory converts JSON rate documents to payroll.RateConfig.
type RateFactory struct{}

// NewRateFactory creates a new rate factory.
func NewRateFactory() *RateFactory {
	return &RateFactory{}
}

// ParseRates parses a JSON document.
func (f *RateFactory) ParseRates(jsonStr string) (payroll.RateConfig, []string, error) {
	var rj RateConfigJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return payroll.RateConfig{}, nil, fmt.Errorf("invalid rate JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// ReadRates parses a JSON document from r.
func (f *RateFactory) ReadRates(r io.Reader) (payroll.RateConfig, []string, error) {
	var rj RateConfigJSON
	if err := json.NewDecoder(r).Decode(&rj); err != nil {
		return payroll.RateConfig{}, nil, fmt.Errorf("invalid rate JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts and validates a decoded document. An empty formula
// falls back to the default one.
func (f *RateFactory) FromJSON(rj RateConfigJSON) (payroll.RateConfig, []string, error) {
	cfg := payroll.RateConfig{Formula: strings.TrimSpace(rj.Formula)}
	if cfg.Formula == "" {
		cfg.Formula = formula.Default
	}
	for _, r := range rj.BaseRates {
		cfg.BaseRates = append(cfg.BaseRates, payroll.BaseRate{Scale: r.Scale, HourlyRate: r.HourlyRate})
	}
	for _, b := range rj.Bands {
		cfg.Bands = append(cfg.Bands, payroll.StudentBand{
			Scale:      b.Scale,
			Min:        b.Min,
			Max:        b.Max,
			HourlyRate: b.HourlyRate,
		})
	}

	if err := payroll.ValidateRateConfig(cfg); err != nil {
		return payroll.RateConfig{}, nil, err
	}
	return cfg, Warnings(cfg), nil
}

// ToJSON converts a rate configuration to its JSON representation.
func (f *RateFactory) ToJSON(cfg payroll.RateConfig) RateConfigJSON {
	rj := RateConfigJSON{
		Formula:   cfg.Formula,
		BaseRates: make([]BaseRateJSON, 0, len(cfg.BaseRates)),
		Bands:     make([]BandJSON, 0, len(cfg.Bands)),
	}
	for _, r := range cfg.BaseRates {
		rj.BaseRates = append(rj.BaseRates, BaseRateJSON{Scale: r.Scale, HourlyRate: r.HourlyRate})
	}
	for _, b := range cfg.Bands {
		rj.Bands = append(rj.Bands, BandJSON{
			ID:         b.ID,
			Scale:      b.Scale,
			Min:        b.Min,
			Max:        b.Max,
			HourlyRate: b.HourlyRate,
		})
	}
	return rj
}

// WriteRates writes cfg as indented JSON.
func (f *RateFactory) WriteRates(w io.Writer, cfg payroll.RateConfig) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f.ToJSON(cfg))
}

// Warnings lists the non-fatal problems of a configuration.
func Warnings(cfg payroll.RateConfig) []string {
	var warnings []string
	if err := formula.Validate(cfg.Formula); err != nil {
		warnings = append(warnings, fmt.Sprintf("formula: %v (line items will price at 0)", err))
	}
	for _, scale := range payroll.Scales {
		if gaps := cfg.Gaps(scale); len(gaps) > 0 {
			warnings = append(warnings, fmt.Sprintf("scale %d: student counts %s have no band", scale, compactRanges(gaps)))
		}
	}
	return warnings
}

// compactRanges renders [1 2 3 7 9 10] as "1-3, 7, 9-10".
func compactRanges(ns []int) string {
	var parts []string
	for i := 0; i < len(ns); {
		j := i
		for j+1 < len(ns) && ns[j+1] == ns[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, fmt.Sprintf("%d", ns[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", ns[i], ns[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ", ")
}
