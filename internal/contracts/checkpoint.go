package contracts

import (
	"context"
	"time"

	"github.com/guregu/null/v6"
)

// QualifiedSymbol is one symbol that passed the rule at a checkpoint
type QualifiedSymbol struct {
	Symbol            string     `json:"symbol"`
	CurrentPrice      float64    `json:"current_price"`
	PctChange         float64    `json:"pct_change"` // vs previous close
	Volume            float64    `json:"volume"`
	MarketCapMillions null.Float `json:"intraday_market_cap_millions"`
}

// CheckpointResult is what one checkpoint run hands to the notifier
// ⭐ SSOT: checkpoint output
type CheckpointResult struct {
	RunID          string            `json:"run_id"`
	Date           string            `json:"date"`
	Label          string            `json:"label"`
	Qualified      []QualifiedSymbol `json:"qualified"`
	TotalCount     int               `json:"total_count"`
	QualifiedCount int               `json:"qualified_count"`
	FetchedCount   int               `json:"fetched_count"`
	FailedCount    int               `json:"failed_count"`
	Duration       time.Duration     `json:"duration"`
}

// AllFetchesFailed reports a total provider outage for this checkpoint
func (r *CheckpointResult) AllFetchesFailed() bool {
	return r.FetchedCount > 0 && r.FailedCount == r.FetchedCount
}

// Notifier delivers checkpoint summaries and failure alerts.
// A notifier error never fails the checkpoint.
// ⭐ SSOT: notification interface
type Notifier interface {
	Notify(ctx context.Context, result *CheckpointResult) error
	NotifyFailure(ctx context.Context, date, label string, cause error) error
}
