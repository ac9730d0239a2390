package polygon

import (
	"context"
	"fmt"
	"net/url"

	"github.com/wonny/gapwatch/internal/contracts"
)

// maxTickerPages bounds next_url pagination
const maxTickerPages = 50

type tickersResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Ticker string `json:"ticker"`
		Type   string `json:"type"`
		Active bool   `json:"active"`
	} `json:"results"`
	NextURL string `json:"next_url"`
}

// TickerSource lists active common stocks on one exchange
type TickerSource struct {
	client   *Client
	exchange string
}

var _ contracts.SymbolSource = (*TickerSource)(nil)

// NewTickerSource creates a source over the reference tickers endpoint.
// exchange defaults to XNAS.
func NewTickerSource(client *Client, exchange string) *TickerSource {
	if exchange == "" {
		exchange = "XNAS"
	}
	return &TickerSource{client: client, exchange: exchange}
}

// Name returns the source name
func (s *TickerSource) Name() string {
	return "polygon_tickers_" + s.exchange
}

// Symbols pages through every active common stock
func (s *TickerSource) Symbols(ctx context.Context) ([]string, error) {
	params := url.Values{}
	params.Set("market", "stocks")
	params.Set("exchange", s.exchange)
	params.Set("type", "CS")
	params.Set("active", "true")
	params.Set("limit", "1000")
	next := s.client.buildURL("/v3/reference/tickers", params)

	var symbols []string
	for page := 0; next != "" && page < maxTickerPages; page++ {
		var resp tickersResponse
		if err := s.client.getJSON(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("list tickers page %d: %w", page+1, err)
		}

		for _, r := range resp.Results {
			if r.Type == "" || r.Type == "CS" {
				symbols = append(symbols, r.Ticker)
			}
		}

		next = ""
		if resp.NextURL != "" {
			signed, err := s.client.signURL(resp.NextURL)
			if err != nil {
				return nil, err
			}
			next = signed
		}
	}

	s.client.logger.WithFields(map[string]interface{}{
		"exchange": s.exchange,
		"count":    len(symbols),
	}).Info("Listed reference tickers")
	return symbols, nil
}

type gainersResponse struct {
	Status  string           `json:"status"`
	Tickers []tickerSnapshot `json:"tickers"`
}

// GainersSource lists the day's top gainers by percent change
type GainersSource struct {
	client *Client
}

var _ contracts.SymbolSource = (*GainersSource)(nil)

// NewGainersSource creates a source over the gainers snapshot endpoint
func NewGainersSource(client *Client) *GainersSource {
	return &GainersSource{client: client}
}

// Name returns the source name
func (s *GainersSource) Name() string {
	return "polygon_gainers"
}

// Symbols returns gainers in the order Polygon ranks them
func (s *GainersSource) Symbols(ctx context.Context) ([]string, error) {
	var resp gainersResponse
	if err := s.client.getJSON(ctx, s.client.buildURL("/v2/snapshot/locale/us/markets/stocks/gainers", nil), &resp); err != nil {
		return nil, fmt.Errorf("gainers snapshot: %w", err)
	}

	symbols := make([]string, 0, len(resp.Tickers))
	for _, t := range resp.Tickers {
		if t.Ticker != "" {
			symbols = append(symbols, t.Ticker)
		}
	}
	return symbols, nil
}
