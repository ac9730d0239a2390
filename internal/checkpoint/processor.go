// Package checkpoint runs one scheduled checkpoint: fetch quotes for the
// day's symbols, merge them into the dataset, re-evaluate every row and
// persist.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"

	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/internal/dataset"
	"github.com/wonny/gapwatch/internal/observability"
	"github.com/wonny/gapwatch/internal/qualification"
	"github.com/wonny/gapwatch/pkg/logger"
)

// ErrCheckpointFailed marks a run that did not durably record its checkpoint
var ErrCheckpointFailed = errors.New("checkpoint failed")

// Config holds processor configuration
type Config struct {
	Workers      int           // concurrent quote fetches
	FetchTimeout time.Duration // per symbol, not per checkpoint
}

// Processor orchestrates checkpoint runs
// ⭐ SSOT: the only writer of checkpoint columns and verdicts
type Processor struct {
	store    *dataset.Store
	provider contracts.QuoteProvider
	rule     *qualification.Rule
	schedule *Schedule
	cfg      Config
	metrics  *observability.Metrics
	logger   *logger.Logger
}

// NewProcessor creates a new Processor. metrics may be nil.
func NewProcessor(
	store *dataset.Store,
	provider contracts.QuoteProvider,
	rule *qualification.Rule,
	schedule *Schedule,
	cfg Config,
	metrics *observability.Metrics,
	log *logger.Logger,
) *Processor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 18 * time.Second
	}
	return &Processor{
		store:    store,
		provider: provider,
		rule:     rule,
		schedule: schedule,
		cfg:      cfg,
		metrics:  metrics,
		logger:   log.WithField("module", "checkpoint"),
	}
}

// Schedule returns the processor's schedule
func (p *Processor) Schedule() *Schedule {
	return p.schedule
}

// fetchResult is the outcome of one symbol's fetch
type fetchResult struct {
	Symbol string
	Quote  *contracts.Quote
	Error  error
}

// Run executes checkpoint label for date.
//
// symbols selects what to fetch; when empty the stored table's symbols are
// used. Per-symbol fetch failures only show up in the result counts. Load or
// persist failures, an invalid date or label, and cancellation during the
// fetch phase return ErrCheckpointFailed. Running the same checkpoint again
// overwrites its columns in place.
func (p *Processor) Run(ctx context.Context, date, label string, symbols []string) (*contracts.CheckpointResult, error) {
	start := time.Now()
	result, err := p.run(ctx, date, label, symbols, start)

	qualified := 0
	if result != nil {
		qualified = result.QualifiedCount
	}
	p.metrics.ObserveCheckpoint(label, err, qualified, time.Since(start))
	return result, err
}

func (p *Processor) run(ctx context.Context, date, label string, symbols []string, start time.Time) (*contracts.CheckpointResult, error) {
	if err := dataset.ValidateDate(date); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
	}
	if err := dataset.ValidateLabel(label); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
	}

	runID := uuid.NewString()
	log := p.logger.WithCheckpoint(date, label, runID)

	// 1. Load or create the day's table
	table, err := p.store.LoadOrCreate(ctx, date, symbols)
	if err != nil {
		log.WithError(err).Error("Failed to load dataset")
		return nil, fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
	}
	if len(symbols) == 0 {
		symbols = table.Symbols()
	}

	log.WithFields(map[string]interface{}{
		"symbols": len(symbols),
		"rows":    table.Len(),
		"full":    p.schedule.IsFull(label),
		"workers": p.cfg.Workers,
	}).Info("Starting checkpoint")

	// 2. Fetch every symbol; nothing below runs until all fetches are done
	results := p.fetchAll(ctx, log, table, date, symbols)
	if err := ctx.Err(); err != nil {
		log.WithError(err).Warn("Checkpoint cancelled during fetch, nothing merged")
		return nil, fmt.Errorf("%w: cancelled: %w", ErrCheckpointFailed, err)
	}

	updates := make(map[string]dataset.Update, len(results))
	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
			continue
		}
		updates[r.Symbol] = toUpdate(r.Quote)
	}
	p.metrics.ObserveFetches(len(results)-failed, failed)
	if failed > 0 {
		log.WithFields(map[string]interface{}{
			"event":  "partial_fetch_failure",
			"failed": failed,
			"total":  len(results),
		}).Warn("Some quote fetches failed")
	}

	// 3-4. Merge; derived per-checkpoint values are computed by the merge
	stats := dataset.MergeCheckpoint(table, label, updates, p.schedule.MergeOptions(label), log)

	// 5. Re-evaluate every row
	qualified := p.evaluate(table, label)

	// 6. Persist
	if err := p.store.Persist(ctx, table); err != nil {
		p.metrics.ObservePersistFailure()
		log.WithError(err).Error("Failed to persist dataset")
		return nil, fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
	}

	// 7. Report
	result := &contracts.CheckpointResult{
		RunID:          runID,
		Date:           date,
		Label:          label,
		Qualified:      qualified,
		TotalCount:     table.Len(),
		QualifiedCount: len(qualified),
		FetchedCount:   len(results),
		FailedCount:    failed,
		Duration:       time.Since(start),
	}

	log.WithFields(map[string]interface{}{
		"total":     result.TotalCount,
		"qualified": result.QualifiedCount,
		"merged":    stats.Merged,
		"failed":    result.FailedCount,
		"duration":  result.Duration.String(),
	}).Info("Checkpoint completed")

	return result, nil
}

// fetchAll runs the worker pool. Every requested symbol yields exactly one result.
func (p *Processor) fetchAll(ctx context.Context, log *logger.Logger, table *dataset.Table, date string, symbols []string) []fetchResult {
	// reference data is only worth asking for while shares are unknown
	reqs := make([]contracts.QuoteRequest, 0, len(symbols))
	for _, sym := range symbols {
		row := table.Row(sym)
		reqs = append(reqs, contracts.QuoteRequest{
			Symbol:           sym,
			Date:             date,
			IncludeReference: row == nil || !row.SharesOutstanding.Valid,
		})
	}

	results := make([]fetchResult, 0, len(reqs))
	resultCh := make(chan fetchResult, len(reqs))
	reqCh := make(chan contracts.QuoteRequest, len(reqs))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.fetchWorker(ctx, log, workerID, reqCh, resultCh)
		}(i)
	}

	for _, req := range reqs {
		reqCh <- req
	}
	close(reqCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for r := range resultCh {
		results = append(results, r)
	}
	return results
}

// fetchWorker fetches quotes until reqCh is drained
func (p *Processor) fetchWorker(ctx context.Context, log *logger.Logger, workerID int, reqCh <-chan contracts.QuoteRequest, resultCh chan<- fetchResult) {
	for req := range reqCh {
		select {
		case <-ctx.Done():
			resultCh <- fetchResult{Symbol: req.Symbol, Error: ctx.Err()}
			continue
		default:
		}

		q, err := p.fetchOne(ctx, req)
		if err != nil {
			entry := log.WithSymbol(req.Symbol).WithError(err).WithField("worker", workerID)
			if errors.Is(err, contracts.ErrNoQuote) {
				entry.Debug("No quote for symbol")
			} else {
				entry.Warn("Failed to fetch quote")
			}
			resultCh <- fetchResult{Symbol: req.Symbol, Error: err}
			continue
		}

		resultCh <- fetchResult{Symbol: req.Symbol, Quote: q}
	}
}

func (p *Processor) fetchOne(ctx context.Context, req contracts.QuoteRequest) (*contracts.Quote, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	q, err := p.provider.Fetch(fetchCtx, req)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, contracts.ErrNoQuote
	}
	return q, nil
}

func toUpdate(q *contracts.Quote) dataset.Update {
	return dataset.Update{
		Open:              q.Open,
		Close:             q.Close,
		Volume:            q.Volume,
		AvgVolume:         q.AvgVolume,
		SharesOutstanding: q.SharesOutstanding,
		CurrentPrice:      q.CurrentPrice,
		High:              q.High,
		Low:               q.Low,
	}
}

// evaluate refreshes derived fields, stamps label's verdict on every row
// and returns the qualified symbols, largest market cap first.
func (p *Processor) evaluate(table *dataset.Table, label string) []contracts.QualifiedSymbol {
	var qualified []contracts.QualifiedSymbol

	for _, row := range table.Rows() {
		row.RefreshDerived()

		// a row is judged on the volume and price observed at this
		// checkpoint, so a failed fetch reads as missing data before any
		// value left by an earlier checkpoint is looked at
		view := *row
		view.Volume = null.Float{}
		view.CurrentPrice = null.Float{}
		cp := row.Checkpoint(label)
		if cp != nil {
			view.Volume = cp.CurrentVolume
			view.CurrentPrice = cp.CurrentPrice
		}

		v := p.rule.Evaluate(&view)
		table.Stamp(row.Symbol, label, v)
		if !v.Qualified {
			continue
		}

		pct, _ := qualification.PctChange(view.Close, view.CurrentPrice)
		pctF, _ := pct.Float64()
		qualified = append(qualified, contracts.QualifiedSymbol{
			Symbol:            row.Symbol,
			CurrentPrice:      view.CurrentPrice.Float64,
			PctChange:         pctF,
			Volume:            view.Volume.Float64,
			MarketCapMillions: cp.IntradayMarketCapMillions,
		})
	}

	SortByMarketCap(qualified)
	return qualified
}

// SortByMarketCap orders symbols by market cap descending; unknown caps go
// last, ties by symbol.
func SortByMarketCap(qs []contracts.QualifiedSymbol) {
	sort.SliceStable(qs, func(i, j int) bool {
		a, b := qs[i].MarketCapMillions, qs[j].MarketCapMillions
		if a.Valid != b.Valid {
			return a.Valid
		}
		if a.Valid && a.Float64 != b.Float64 {
			return a.Float64 > b.Float64
		}
		return qs[i].Symbol < qs[j].Symbol
	})
}
