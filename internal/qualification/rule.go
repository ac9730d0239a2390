package qualification

import (
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"github.com/wonny/gapwatch/internal/dataset"
)

// Thresholds of the gap-up rule
type Thresholds struct {
	MinVolume    float64 `yaml:"min_volume" json:"min_volume"`         // volume must be strictly greater
	MinClose     float64 `yaml:"min_close" json:"min_close"`           // previous close floor, inclusive
	MinPctChange float64 `yaml:"min_pct_change" json:"min_pct_change"` // change vs previous close, inclusive
}

// DefaultThresholds returns the production thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinVolume:    300_000,
		MinClose:     0.01,
		MinPctChange: 2.5,
	}
}

// Rule evaluates whether a row qualifies.
// Criteria are checked in a fixed order and the reason names the first one
// that fails; a missing input fails with insufficient_data.
// ⭐ SSOT: qualification criteria
type Rule struct {
	t Thresholds
}

// NewRule creates a rule with thresholds t
func NewRule(t Thresholds) *Rule {
	return &Rule{t: t}
}

// Thresholds returns the rule's thresholds
func (r *Rule) Thresholds() Thresholds {
	return r.t
}

// Evaluate returns the verdict for row. It reads only the row and has no
// memory between calls.
func (r *Rule) Evaluate(row *dataset.Row) dataset.Verdict {
	// 1. liquidity
	if !row.Volume.Valid {
		return fail(dataset.ReasonInsufficientData)
	}
	if !(row.Volume.Float64 > r.t.MinVolume) {
		return fail(dataset.ReasonVolumeBelowMinimum)
	}

	// 2. price floor
	if !row.Close.Valid {
		return fail(dataset.ReasonInsufficientData)
	}
	if dec(row.Close).LessThan(decimal.NewFromFloat(r.t.MinClose)) {
		return fail(dataset.ReasonCloseBelowMinimum)
	}

	// 3. gap-up
	if !row.Open.Valid {
		return fail(dataset.ReasonInsufficientData)
	}
	if !dec(row.Open).GreaterThan(dec(row.Close)) {
		return fail(dataset.ReasonNoGapUp)
	}

	// 4. move since previous close
	if !row.CurrentPrice.Valid {
		return fail(dataset.ReasonInsufficientData)
	}
	change, ok := PctChange(row.Close, row.CurrentPrice)
	if !ok {
		return fail(dataset.ReasonChangeBelowMinimum)
	}
	if change.LessThan(decimal.NewFromFloat(r.t.MinPctChange)) {
		return fail(dataset.ReasonChangeBelowMinimum)
	}

	return dataset.Verdict{Qualified: true, Reason: dataset.ReasonQualified}
}

// PctChange returns (current - close) / close * 100 in decimal arithmetic,
// so values such as 10.25 vs 10.00 land exactly on 2.5.
// ok is false when either input is missing or close is not positive.
func PctChange(close, current null.Float) (decimal.Decimal, bool) {
	if !close.Valid || !current.Valid || close.Float64 <= 0 {
		return decimal.Zero, false
	}
	c := dec(close)
	return dec(current).Sub(c).Div(c).Mul(decimal.NewFromInt(100)), true
}

func dec(f null.Float) decimal.Decimal {
	return decimal.NewFromFloat(f.Float64)
}

func fail(reason string) dataset.Verdict {
	return dataset.Verdict{Qualified: false, Reason: reason}
}
