package universe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/pkg/httputil"
	"github.com/wonny/gapwatch/pkg/logger"
)

// StaticSource yields a fixed list (tests, small manual runs)
type StaticSource struct {
	name    string
	symbols []string
}

var _ contracts.SymbolSource = (*StaticSource)(nil)

// NewStaticSource creates a source over symbols
func NewStaticSource(name string, symbols []string) *StaticSource {
	if name == "" {
		name = "static"
	}
	return &StaticSource{name: name, symbols: append([]string(nil), symbols...)}
}

// Name returns the source name
func (s *StaticSource) Name() string { return s.name }

// Symbols returns a copy of the fixed list
func (s *StaticSource) Symbols(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.symbols...), nil
}

var tickerText = regexp.MustCompile(`^[A-Z][A-Z.\-/]{0,9}$`)

// HTMLGainersSource scrapes a pre-market gainers page. It reads the first
// table whose header has a "Symbol" column; when no such header exists the
// first cell of each row is used.
type HTMLGainersSource struct {
	httpClient *httputil.Client
	url        string
	logger     *logger.Logger
}

var _ contracts.SymbolSource = (*HTMLGainersSource)(nil)

// NewHTMLGainersSource creates a scraper for pageURL
func NewHTMLGainersSource(httpClient *httputil.Client, pageURL string, log *logger.Logger) *HTMLGainersSource {
	return &HTMLGainersSource{
		httpClient: httpClient,
		url:        pageURL,
		logger:     log.WithField("module", "gainers_html"),
	}
}

// Name returns the source name
func (s *HTMLGainersSource) Name() string { return "gainers_html" }

// Symbols fetches the page and returns symbols in page order
func (s *HTMLGainersSource) Symbols(ctx context.Context) ([]string, error) {
	resp, err := s.httpClient.Get(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	symbols, err := parseGainersHTML(string(body))
	if err != nil {
		return nil, err
	}

	s.logger.WithField("count", len(symbols)).Debug("Parsed gainers page")
	return symbols, nil
}

func parseGainersHTML(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil, fmt.Errorf("no table found in gainers page")
	}

	table, col := tables.First(), 0
	tables.EachWithBreak(func(_ int, t *goquery.Selection) bool {
		idx := -1
		t.Find("th").EachWithBreak(func(i int, th *goquery.Selection) bool {
			h := strings.ToLower(strings.TrimSpace(th.Text()))
			if h == "symbol" || h == "ticker" {
				idx = i
				return false
			}
			return true
		})
		if idx >= 0 {
			table, col = t, idx
			return false
		}
		return true
	})

	var symbols []string
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= col {
			return
		}
		cell := cells.Eq(col)
		text := strings.TrimSpace(cell.Find("a").First().Text())
		if text == "" {
			text = strings.TrimSpace(cell.Text())
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			return
		}
		if sym := strings.ToUpper(fields[0]); tickerText.MatchString(sym) {
			symbols = append(symbols, sym)
		}
	})

	return symbols, nil
}
