package polygon

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/guregu/null/v6"

	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/pkg/httputil"
)

var _ contracts.QuoteProvider = (*Client)(nil)

type bar struct {
	O  *float64 `json:"o"`
	H  *float64 `json:"h"`
	L  *float64 `json:"l"`
	C  *float64 `json:"c"`
	V  *float64 `json:"v"`
	VW *float64 `json:"vw"`
}

type tickerSnapshot struct {
	Ticker    string `json:"ticker"`
	Day       bar    `json:"day"`
	Min       bar    `json:"min"`
	PrevDay   bar    `json:"prevDay"`
	LastTrade struct {
		P *float64 `json:"p"`
	} `json:"lastTrade"`
	TodaysChangePerc *float64 `json:"todaysChangePerc"`
	Updated          int64    `json:"updated"`
}

type snapshotResponse struct {
	Status string         `json:"status"`
	Ticker tickerSnapshot `json:"ticker"`
}

// Fetch returns the current snapshot of req.Symbol. Shares outstanding are
// looked up only when req.IncludeReference is set; a failed reference lookup
// leaves them null rather than failing the quote.
func (c *Client) Fetch(ctx context.Context, req contracts.QuoteRequest) (*contracts.Quote, error) {
	snap, err := c.getSnapshot(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	q := snapshotToQuote(req.Symbol, snap)

	if req.IncludeReference {
		ref, err := c.GetTickerReference(ctx, req.Symbol, req.Date)
		if err != nil {
			c.logger.WithError(err).WithField("symbol", req.Symbol).Warn("Ticker reference lookup failed")
		} else {
			q.SharesOutstanding = ref.Shares(q.Close)
		}
	}

	return q, nil
}

// getSnapshot fetches the current-day snapshot of one ticker
func (c *Client) getSnapshot(ctx context.Context, symbol string) (*tickerSnapshot, error) {
	path := fmt.Sprintf("/v2/snapshot/locale/us/markets/stocks/tickers/%s", url.PathEscape(symbol))

	var resp snapshotResponse
	if err := c.getJSON(ctx, c.buildURL(path, nil), &resp); err != nil {
		if httputil.IsNotFound(err) {
			return nil, fmt.Errorf("%s: %w", symbol, contracts.ErrNoQuote)
		}
		return nil, fmt.Errorf("snapshot %s: %w", symbol, err)
	}
	if resp.Status != "OK" || resp.Ticker.Ticker == "" {
		return nil, fmt.Errorf("%s: status %q: %w", symbol, resp.Status, contracts.ErrNoQuote)
	}

	return &resp.Ticker, nil
}

func snapshotToQuote(symbol string, s *tickerSnapshot) *contracts.Quote {
	q := &contracts.Quote{
		Symbol:    symbol,
		Open:      positive(s.Day.O),
		High:      positive(s.Day.H),
		Low:       positive(s.Day.L),
		Volume:    positive(s.Day.V),
		Close:     nonNegative(s.PrevDay.C),
		AvgVolume: positive(s.PrevDay.V),
		FetchedAt: time.Now(),
	}

	// last trade, else the latest minute bar, else the day bar
	for _, p := range []*float64{s.LastTrade.P, s.Min.C, s.Day.C} {
		if v := positive(p); v.Valid {
			q.CurrentPrice = v
			break
		}
	}

	return q
}

// nonNegative keeps a reported zero: a previous close of 0.00 is a real
// value the rule rejects, not a missing one
func nonNegative(v *float64) null.Float {
	if v == nil || *v < 0 {
		return null.Float{}
	}
	return null.FloatFrom(*v)
}

// positive maps Polygon's zero placeholders (no trades yet) to null
func positive(v *float64) null.Float {
	if v == nil || *v <= 0 {
		return null.Float{}
	}
	return null.FloatFrom(*v)
}
