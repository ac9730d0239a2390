package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"
)

// spellings of "no value" found in files written by older tooling
var nullTokens = map[string]bool{
	"":     true,
	"n/a":  true,
	"na":   true,
	"nan":  true,
	"none": true,
	"null": true,
}

// ParseFloat reads a nullable numeric cell. Unparsable and non-finite
// values read as null.
func ParseFloat(cell string) null.Float {
	s := strings.TrimSpace(cell)
	if nullTokens[strings.ToLower(s)] {
		return null.Float{}
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}

// FormatFloat writes a nullable numeric cell using the shortest text that
// round-trips, so re-encoding a decoded table is byte-stable.
func FormatFloat(f null.Float) string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.Float64, 'f', -1, 64)
}

// ParseBool reads True/true/1 as true; anything else is false
func ParseBool(cell string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(cell))
	return err == nil && b
}

// FormatBool writes "true" or "false"
func FormatBool(b bool) string {
	return strconv.FormatBool(b)
}

// PctChange returns (to - from) / from * 100, null unless both are known and from > 0
func PctChange(from, to null.Float) null.Float {
	if !from.Valid || !to.Valid || from.Float64 <= 0 {
		return null.Float{}
	}
	return null.FloatFrom((to.Float64 - from.Float64) / from.Float64 * 100)
}

// MarketCapMillions returns shares * price / 1e6, null unless both are known
func MarketCapMillions(shares, price null.Float) null.Float {
	if !shares.Valid || !price.Valid {
		return null.Float{}
	}
	return null.FloatFrom(shares.Float64 * price.Float64 / 1_000_000)
}

// present treats a missing or non-finite value as null
func present(f null.Float) bool {
	return f.Valid && !math.IsNaN(f.Float64) && !math.IsInf(f.Float64, 0)
}
