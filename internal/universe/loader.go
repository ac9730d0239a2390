// Package universe resolves the day's symbol universe.
package universe

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/internal/dataset"
	"github.com/wonny/gapwatch/internal/observability"
	"github.com/wonny/gapwatch/internal/storage"
	"github.com/wonny/gapwatch/pkg/logger"
	"github.com/wonny/gapwatch/pkg/redis"
)

var commonStock = regexp.MustCompile(`^[A-Z]{1,6}$`)

// IsCommonStockSymbol keeps plain uppercase tickers of 1-6 letters and
// drops warrants, units, preferred and class shares (ABC.W, ABC/U, ABC-P).
func IsCommonStockSymbol(symbol string) bool {
	return commonStock.MatchString(symbol)
}

// SnapshotKey is the storage key of a day's resolved universe
func SnapshotKey(date string) string {
	return fmt.Sprintf("stock_data/%s/universe_%s.csv", date, date)
}

// Universe is the resolved symbol set of one trading day
type Universe struct {
	Date       string   `json:"date"`
	Symbols    []string `json:"symbols"`
	TopGainers []string `json:"top_gainers"`
	Source     string   `json:"source"`
}

// Options configures a Loader
type Options struct {
	Sources    []contracts.SymbolSource
	Gainers    contracts.SymbolSource // optional
	Blobs      storage.BlobStore      // optional day snapshot
	Cache      *redis.Cache           // optional
	MaxSymbols int                    // 0 = no limit
	Metrics    *observability.Metrics
}

// Loader resolves the day's universe.
//
// Lookup order is cache, then the day's snapshot blob, then the sources.
// A list resolved from sources is snapshotted so every later call for the
// same date sees the same symbol set.
// ⭐ SSOT: universe selection
type Loader struct {
	opts   Options
	logger *logger.Logger
}

// NewLoader creates a new Loader
func NewLoader(opts Options, log *logger.Logger) *Loader {
	return &Loader{
		opts:   opts,
		logger: log.WithField("module", "universe"),
	}
}

// Load returns the universe for date
func (l *Loader) Load(ctx context.Context, date string) (*Universe, error) {
	if err := dataset.ValidateDate(date); err != nil {
		return nil, err
	}

	u, err := l.resolve(ctx, date)
	if err != nil {
		return nil, err
	}

	if l.opts.MaxSymbols > 0 && len(u.Symbols) > l.opts.MaxSymbols {
		l.logger.WithFields(map[string]interface{}{
			"date":  date,
			"total": len(u.Symbols),
			"max":   l.opts.MaxSymbols,
		}).Info("Trimming universe")
		trimmed := *u
		trimmed.Symbols = u.Symbols[:l.opts.MaxSymbols]
		u = &trimmed
	}

	l.opts.Metrics.SetUniverseSize(len(u.Symbols))
	return u, nil
}

func (l *Loader) resolve(ctx context.Context, date string) (*Universe, error) {
	key := redis.UniverseKey(date)

	var cached Universe
	if hit, err := l.opts.Cache.Get(ctx, key, &cached); err != nil {
		l.logger.WithError(err).Warn("Universe cache read failed")
	} else if hit && len(cached.Symbols) > 0 {
		cached.Source = "cache"
		return &cached, nil
	}

	if u, err := l.readSnapshot(ctx, date); err == nil {
		l.cacheUniverse(ctx, key, u)
		return u, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		// the snapshot may exist but be unreachable; re-resolving could
		// produce a different symbol set than earlier checkpoints used
		return nil, fmt.Errorf("read universe snapshot: %w", err)
	}

	u, err := l.fromSources(ctx, date)
	if err != nil {
		return nil, err
	}

	if err := l.writeSnapshot(ctx, u); err != nil {
		l.logger.WithError(err).WithField("date", date).Warn("Failed to snapshot universe")
	}
	l.cacheUniverse(ctx, key, u)
	return u, nil
}

func (l *Loader) fromSources(ctx context.Context, date string) (*Universe, error) {
	if len(l.opts.Sources) == 0 {
		return nil, fmt.Errorf("no symbol sources configured")
	}

	seen := make(map[string]bool)
	var names []string
	var errs []error
	for _, src := range l.opts.Sources {
		symbols, err := src.Symbols(ctx)
		if err != nil {
			l.logger.WithError(err).WithField("source", src.Name()).Warn("Symbol source failed")
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		names = append(names, src.Name())
		for _, sym := range symbols {
			sym = strings.TrimSpace(sym)
			if IsCommonStockSymbol(sym) {
				seen[sym] = true
			}
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("all symbol sources failed: %w", errors.Join(errs...))
	}

	var gainers []string
	if l.opts.Gainers != nil {
		g, err := l.opts.Gainers.Symbols(ctx)
		if err != nil {
			l.logger.WithError(err).WithField("source", l.opts.Gainers.Name()).Warn("Gainers source failed")
		}
		for _, sym := range g {
			sym = strings.TrimSpace(sym)
			if IsCommonStockSymbol(sym) {
				gainers = append(gainers, sym)
				seen[sym] = true
			}
		}
	}

	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	l.logger.WithFields(map[string]interface{}{
		"date":    date,
		"sources": strings.Join(names, ","),
		"symbols": len(symbols),
		"gainers": len(gainers),
	}).Info("Universe resolved from sources")

	return &Universe{
		Date:       date,
		Symbols:    symbols,
		TopGainers: dedupe(gainers),
		Source:     strings.Join(names, ","),
	}, nil
}

func (l *Loader) cacheUniverse(ctx context.Context, key string, u *Universe) {
	if err := l.opts.Cache.Set(ctx, key, u, redis.TTLSession); err != nil {
		l.logger.WithError(err).Warn("Universe cache write failed")
	}
}

func (l *Loader) readSnapshot(ctx context.Context, date string) (*Universe, error) {
	if l.opts.Blobs == nil {
		return nil, storage.ErrNotFound
	}

	data, err := l.opts.Blobs.Get(ctx, SnapshotKey(date))
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}

	u := &Universe{Date: date, Source: "snapshot"}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		u.Symbols = append(u.Symbols, rec[0])
		if len(rec) > 1 && dataset.ParseBool(rec[1]) {
			u.TopGainers = append(u.TopGainers, rec[0])
		}
	}
	return u, nil
}

func (l *Loader) writeSnapshot(ctx context.Context, u *Universe) error {
	if l.opts.Blobs == nil {
		return nil
	}

	gainer := make(map[string]bool, len(u.TopGainers))
	for _, g := range u.TopGainers {
		gainer[g] = true
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"symbol", "top_gainer"})
	for _, sym := range u.Symbols {
		_ = w.Write([]string{sym, dataset.FormatBool(gainer[sym])})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return l.opts.Blobs.Put(ctx, SnapshotKey(u.Date), buf.Bytes())
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
