/*
rates.go - Rate resolution

PURPOSE:
  Maps a teacher's scale to a base hourly rate, and (scale, student count)
  to a supplemental band rate. The two are combined by the formula (see
  settlement.go) or summed for display.

LOOKUP POLICY:
  A missing base rate or an unmapped student count resolves to zero. This is
  silent on purpose: the statement is still created and the admin sees a
  zero line. Gaps() exists so the admin UI can warn about unmapped counts.

SNAPSHOT:
  RateConfig is an immutable value loaded from the store. Resolution is a
  pure function of the snapshot, so a single statement edit always sees one
  consistent configuration.
*/
package payroll

import (
	"github.com/shopspring/decimal"
)

// MaxBandStudents is the upper end of the student-count range bands must cover.
const MaxBandStudents = 99

// BaseRate is the hourly rate for a scale.
type BaseRate struct {
	Scale      int
	HourlyRate decimal.Decimal
}

// StudentBand is a supplemental hourly rate for [Min, Max] students at a scale.
type StudentBand struct {
	ID         int64
	Scale      int
	Min        int
	Max        int
	HourlyRate decimal.Decimal
}

// Contains reports whether the band covers count.
func (b StudentBand) Contains(count int) bool {
	return b.Min <= count && count <= b.Max
}

// RateConfig is the process-wide pricing configuration.
// Bands are scanned in slice order; the store returns them ordered by
// scale, minimum and ID.
type RateConfig struct {
	BaseRates []BaseRate
	Bands     []StudentBand
	Formula   string
}

// BaseRate returns the base hourly rate for scale, or zero.
func (c RateConfig) BaseRate(scale int) decimal.Decimal {
	for _, r := range c.BaseRates {
		if r.Scale == scale {
			return r.HourlyRate
		}
	}
	return decimal.Zero
}

// BandRate returns the rate of the first band of scale containing
// studentCount, or zero when no band matches.
func (c RateConfig) BandRate(scale, studentCount int) decimal.Decimal {
	for _, b := range c.Bands {
		if b.Scale == scale && b.Contains(studentCount) {
			return b.HourlyRate
		}
	}
	return decimal.Zero
}

// HourlyRate is base + band, the rate shown next to a line item.
func (c RateConfig) HourlyRate(scale, studentCount int) decimal.Decimal {
	return c.BaseRate(scale).Add(c.BandRate(scale, studentCount))
}

// BandsFor returns the bands of one scale in lookup order.
func (c RateConfig) BandsFor(scale int) []StudentBand {
	var out []StudentBand
	for _, b := range c.Bands {
		if b.Scale == scale {
			out = append(out, b)
		}
	}
	return out
}

// Gaps returns the student counts in [1, MaxBandStudents] that no band of
// scale covers. Such counts silently price at zero.
func (c RateConfig) Gaps(scale int) []int {
	bands := c.BandsFor(scale)
	var gaps []int
	for n := 1; n <= MaxBandStudents; n++ {
		covered := false
		for _, b := range bands {
			if b.Contains(n) {
				covered = true
				break
			}
		}
		if !covered {
			gaps = append(gaps, n)
		}
	}
	return gaps
}

// DefaultRateConfig is the configuration seeded on first start: zero rates
// for every scale, the default bands and the default formula.
func DefaultRateConfig(formulaExpr string) RateConfig {
	cfg := RateConfig{Formula: formulaExpr}
	for _, scale := range Scales {
		cfg.BaseRates = append(cfg.BaseRates, BaseRate{Scale: scale, HourlyRate: decimal.Zero})
		for _, r := range DefaultBandRanges {
			cfg.Bands = append(cfg.Bands, StudentBand{
				Scale:      scale,
				Min:        r[0],
				Max:        r[1],
				HourlyRate: decimal.Zero,
			})
		}
	}
	return cfg
}
