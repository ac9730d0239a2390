package qualification

import (
	"testing"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"

	"github.com/wonny/gapwatch/internal/dataset"
)

func row(volume, close, open, current null.Float) *dataset.Row {
	return &dataset.Row{
		Symbol:       "TEST",
		Volume:       volume,
		Close:        close,
		Open:         open,
		CurrentPrice: current,
	}
}

func v(x float64) null.Float { return null.FloatFrom(x) }

var none = null.Float{}

func TestEvaluate(t *testing.T) {
	rule := NewRule(DefaultThresholds())

	tests := []struct {
		name       string
		row        *dataset.Row
		wantOK     bool
		wantReason string
	}{
		{
			name:       "qualifies",
			row:        row(v(500_000), v(10.00), v(10.30), v(10.30)),
			wantOK:     true,
			wantReason: dataset.ReasonQualified,
		},
		{
			name:       "volume fails first",
			row:        row(v(200_000), v(10.00), v(10.30), v(10.30)),
			wantReason: dataset.ReasonVolumeBelowMinimum,
		},
		{
			name:       "volume equal to minimum fails",
			row:        row(v(300_000), v(10.00), v(10.30), v(10.30)),
			wantReason: dataset.ReasonVolumeBelowMinimum,
		},
		{
			name:       "zero close fails price floor",
			row:        row(v(500_000), v(0.00), v(0.01), v(0.02)),
			wantReason: dataset.ReasonCloseBelowMinimum,
		},
		{
			name:       "close exactly at floor passes floor",
			row:        row(v(500_000), v(0.01), v(0.02), v(0.02)),
			wantOK:     true,
			wantReason: dataset.ReasonQualified,
		},
		{
			name:       "no gap up",
			row:        row(v(500_000), v(10.00), v(10.00), v(10.50)),
			wantReason: dataset.ReasonNoGapUp,
		},
		{
			name:       "change below minimum",
			row:        row(v(500_000), v(10.00), v(10.10), v(10.20)),
			wantReason: dataset.ReasonChangeBelowMinimum,
		},
		{
			name:       "change exactly at minimum",
			row:        row(v(500_000), v(10.00), v(10.10), v(10.25)),
			wantOK:     true,
			wantReason: dataset.ReasonQualified,
		},
		{
			name:       "null volume",
			row:        row(none, v(10.00), v(10.30), v(10.30)),
			wantReason: dataset.ReasonInsufficientData,
		},
		{
			name:       "null close",
			row:        row(v(500_000), none, v(10.30), v(10.30)),
			wantReason: dataset.ReasonInsufficientData,
		},
		{
			name:       "null open",
			row:        row(v(500_000), v(10.00), none, v(10.30)),
			wantReason: dataset.ReasonInsufficientData,
		},
		{
			name:       "null current price",
			row:        row(v(500_000), v(10.00), v(10.30), none),
			wantReason: dataset.ReasonInsufficientData,
		},
		{
			name:       "earlier failure wins over later null",
			row:        row(v(100), v(10.00), none, none),
			wantReason: dataset.ReasonVolumeBelowMinimum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Evaluate(tt.row)
			assert.Equal(t, tt.wantOK, got.Qualified)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestEvaluate_Pure(t *testing.T) {
	rule := NewRule(DefaultThresholds())
	r := row(v(500_000), v(10.00), v(10.30), v(10.30))

	first := rule.Evaluate(r)
	second := rule.Evaluate(r)

	assert.Equal(t, first, second)
	assert.Equal(t, 10.30, r.CurrentPrice.Float64)
}

func TestEvaluate_CustomThresholds(t *testing.T) {
	rule := NewRule(Thresholds{MinVolume: 1_000_000, MinClose: 1, MinPctChange: 5})

	got := rule.Evaluate(row(v(500_000), v(10.00), v(10.30), v(10.30)))
	assert.Equal(t, dataset.ReasonVolumeBelowMinimum, got.Reason)

	got = rule.Evaluate(row(v(2_000_000), v(10.00), v(10.30), v(10.40)))
	assert.Equal(t, dataset.ReasonChangeBelowMinimum, got.Reason)
}

func TestPctChange(t *testing.T) {
	got, ok := PctChange(v(10.00), v(10.30))
	assert.True(t, ok)
	assert.Equal(t, "3", got.String())

	_, ok = PctChange(v(0), v(1))
	assert.False(t, ok)

	_, ok = PctChange(none, v(1))
	assert.False(t, ok)
}
