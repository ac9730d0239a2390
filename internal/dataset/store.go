package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wonny/gapwatch/internal/storage"
	"github.com/wonny/gapwatch/pkg/logger"
)

// Store loads and persists one table per trading day.
//
// A table whose persist failed stays in memory as pending and is preferred
// over storage by the next load of the same date, so the next checkpoint
// retries persistence with everything accumulated so far.
// ⭐ SSOT: dataset persistence
type Store struct {
	primary  storage.BlobStore
	fallback storage.BlobStore
	logger   *logger.Logger

	persistRetries int
	initialDelay   time.Duration
	maxDelay       time.Duration

	mu      sync.Mutex
	pending map[string]*Table
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithFallback keeps a mirror copy used when primary is unreachable
func WithFallback(b storage.BlobStore) StoreOption {
	return func(s *Store) { s.fallback = b }
}

// WithPersistRetries bounds the persist retry loop
func WithPersistRetries(retries int, initialDelay time.Duration) StoreOption {
	return func(s *Store) {
		s.persistRetries = retries
		s.initialDelay = initialDelay
	}
}

// NewStore creates a Store over primary
func NewStore(primary storage.BlobStore, log *logger.Logger, opts ...StoreOption) *Store {
	s := &Store{
		primary:        primary,
		logger:         log.WithField("module", "dataset"),
		persistRetries: 4,
		initialDelay:   500 * time.Millisecond,
		maxDelay:       10 * time.Second,
		pending:        make(map[string]*Table),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadOrCreate returns the table for date, creating an empty one from
// symbols when nothing is stored yet. A stored table keeps its own symbol
// set; symbols only seed a new day.
func (s *Store) LoadOrCreate(ctx context.Context, date string, symbols []string) (*Table, error) {
	t, err := s.Load(ctx, date)
	if errors.Is(err, ErrNotFound) {
		s.logger.WithFields(map[string]interface{}{
			"date":    date,
			"symbols": len(symbols),
		}).Info("Creating new dataset")
		return NewTable(date, symbols), nil
	}
	if err != nil {
		return nil, err
	}

	if len(symbols) > 0 && len(symbols) != t.Len() {
		s.logger.WithFields(map[string]interface{}{
			"date":      date,
			"stored":    t.Len(),
			"requested": len(symbols),
		}).Warn("Requested symbols differ from stored dataset; keeping stored set")
	}
	return t, nil
}

// Load returns the existing table for date or ErrNotFound
func (s *Store) Load(ctx context.Context, date string) (*Table, error) {
	if t := s.pendingTable(date); t != nil {
		s.logger.WithField("date", date).Warn("Using unpersisted in-memory dataset")
		return t, nil
	}

	key := Key(date)
	data, err := s.primary.Get(ctx, key)
	switch {
	case err == nil:
		return s.decode(date, key, data)
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNotFound
	}

	s.logger.WithError(err).WithField("key", key).Warn("Primary storage read failed")
	if s.fallback == nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrStorageUnavailable, key, err)
	}

	// A missing fallback copy cannot prove the day is new: primary may
	// still hold columns we would overwrite.
	data, ferr := s.fallback.Get(ctx, key)
	if ferr != nil {
		return nil, fmt.Errorf("%w: load %s: primary: %v, fallback: %w", ErrStorageUnavailable, key, err, ferr)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":      key,
		"fallback": s.fallback.Name(),
	}).Warn("Loaded dataset from fallback storage")
	return s.decode(date, key, data)
}

func (s *Store) decode(date, key string, data []byte) (*Table, error) {
	t, err := Decode(date, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return t, nil
}

// Persist writes the whole table, retrying with bounded backoff.
// On final failure the table is kept as pending and ErrStorageUnavailable
// is returned.
func (s *Store) Persist(ctx context.Context, t *Table) error {
	key := Key(t.Date)
	data, err := Encode(t)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	op := func() error {
		return s.primary.Put(ctx, key, data)
	}
	notify := func(err error, wait time.Duration) {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"key":  key,
			"wait": wait,
		}).Warn("Persist failed, retrying")
	}

	err = backoff.RetryNotify(op, s.newBackOff(ctx), notify)

	if s.fallback != nil {
		if ferr := s.fallback.Put(ctx, key, data); ferr != nil {
			s.logger.WithError(ferr).WithField("key", key).Warn("Fallback mirror write failed")
		}
	}

	if err != nil {
		s.setPending(t)
		return fmt.Errorf("%w: persist %s: %w", ErrStorageUnavailable, key, err)
	}

	s.clearPending(t.Date)
	s.logger.WithFields(map[string]interface{}{
		"key":   key,
		"rows":  t.Len(),
		"bytes": len(data),
	}).Debug("Dataset persisted")
	return nil
}

func (s *Store) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.initialDelay
	exp.MaxInterval = s.maxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := s.persistRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

func (s *Store) pendingTable(date string) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[date]
}

func (s *Store) setPending(t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[t.Date] = t
}

func (s *Store) clearPending(date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, date)
}

// PendingDates lists dates whose latest table is not yet durable
func (s *Store) PendingDates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates := make([]string, 0, len(s.pending))
	for d := range s.pending {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// FlushPending retries persisting the pending table of date
func (s *Store) FlushPending(ctx context.Context, date string) error {
	t := s.pendingTable(date)
	if t == nil {
		return nil
	}
	return s.Persist(ctx, t)
}

// DropPending forgets the pending table of date
func (s *Store) DropPending(date string) {
	s.clearPending(date)
}
