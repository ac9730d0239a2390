package polygon

import (
	"context"
	"fmt"
	"net/url"

	"github.com/guregu/null/v6"

	"github.com/wonny/gapwatch/pkg/httputil"
	"github.com/wonny/gapwatch/pkg/redis"
)

// TickerReference is the slow-moving reference data of a ticker
type TickerReference struct {
	Symbol                      string     `json:"symbol"`
	Name                        string     `json:"name"`
	Type                        string     `json:"type"`
	PrimaryExchange             string     `json:"primary_exchange"`
	MarketCap                   null.Float `json:"market_cap"`
	ShareClassSharesOutstanding null.Float `json:"share_class_shares_outstanding"`
	WeightedSharesOutstanding   null.Float `json:"weighted_shares_outstanding"`
}

// Shares returns shares outstanding, preferring the share-class count, then
// the weighted count, then market cap divided by close.
func (r *TickerReference) Shares(close null.Float) null.Float {
	if r.ShareClassSharesOutstanding.Valid && r.ShareClassSharesOutstanding.Float64 > 0 {
		return r.ShareClassSharesOutstanding
	}
	if r.WeightedSharesOutstanding.Valid && r.WeightedSharesOutstanding.Float64 > 0 {
		return r.WeightedSharesOutstanding
	}
	if r.MarketCap.Valid && r.MarketCap.Float64 > 0 && close.Valid && close.Float64 > 0 {
		return null.FloatFrom(r.MarketCap.Float64 / close.Float64)
	}
	return null.Float{}
}

type referenceResponse struct {
	Status  string `json:"status"`
	Results struct {
		Ticker                      string   `json:"ticker"`
		Name                        string   `json:"name"`
		Type                        string   `json:"type"`
		PrimaryExchange             string   `json:"primary_exchange"`
		MarketCap                   *float64 `json:"market_cap"`
		ShareClassSharesOutstanding *float64 `json:"share_class_shares_outstanding"`
		WeightedSharesOutstanding   *float64 `json:"weighted_shares_outstanding"`
	} `json:"results"`
}

// GetTickerReference returns reference data for symbol, cached for the
// trading day when a cache is configured.
func (c *Client) GetTickerReference(ctx context.Context, symbol, date string) (*TickerReference, error) {
	key := redis.TickerReferenceKey(symbol, date)

	var cached TickerReference
	if hit, err := c.cache.Get(ctx, key, &cached); err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Debug("Reference cache read failed")
	} else if hit {
		return &cached, nil
	}

	path := fmt.Sprintf("/v3/reference/tickers/%s", url.PathEscape(symbol))
	var resp referenceResponse
	if err := c.getJSON(ctx, c.buildURL(path, nil), &resp); err != nil {
		if httputil.IsNotFound(err) {
			return &TickerReference{Symbol: symbol}, nil
		}
		return nil, fmt.Errorf("reference %s: %w", symbol, err)
	}

	ref := &TickerReference{
		Symbol:                      symbol,
		Name:                        resp.Results.Name,
		Type:                        resp.Results.Type,
		PrimaryExchange:             resp.Results.PrimaryExchange,
		MarketCap:                   null.FloatFromPtr(resp.Results.MarketCap),
		ShareClassSharesOutstanding: null.FloatFromPtr(resp.Results.ShareClassSharesOutstanding),
		WeightedSharesOutstanding:   null.FloatFromPtr(resp.Results.WeightedSharesOutstanding),
	}

	if err := c.cache.Set(ctx, key, ref, redis.TTLSession); err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Debug("Reference cache write failed")
	}
	return ref, nil
}
