package contracts

import (
	"context"
	"errors"
	"time"

	"github.com/guregu/null/v6"
)

// ErrNoQuote is returned when the provider has nothing for a symbol
var ErrNoQuote = errors.New("no quote available")

// Quote is one provider snapshot of a symbol.
// Every numeric field is independently nullable; a missing value is never zero.
// ⭐ SSOT: provider output shape
type Quote struct {
	Symbol            string     `json:"symbol"`
	Open              null.Float `json:"open"`
	Close             null.Float `json:"close"` // previous session close
	Volume            null.Float `json:"volume"`
	AvgVolume         null.Float `json:"avg_volume"`
	High              null.Float `json:"high"`
	Low               null.Float `json:"low"`
	CurrentPrice      null.Float `json:"current_price"`
	SharesOutstanding null.Float `json:"shares_outstanding"`
	FetchedAt         time.Time  `json:"fetched_at"`
}

// QuoteRequest asks for one symbol.
// IncludeReference requests slow-moving reference data (shares outstanding);
// callers skip it once a value is known for the day.
type QuoteRequest struct {
	Symbol           string
	Date             string // YYYYMMDD
	IncludeReference bool
}

// QuoteProvider fetches current quote data per symbol
// ⭐ SSOT: market data provider interface
type QuoteProvider interface {
	Name() string
	Fetch(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// SymbolSource yields candidate symbols for the day's universe
type SymbolSource interface {
	Name() string
	Symbols(ctx context.Context) ([]string, error)
}
