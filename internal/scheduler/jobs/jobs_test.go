package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapwatch/internal/checkpoint"
	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/internal/dataset"
	"github.com/wonny/gapwatch/internal/qualification"
	"github.com/wonny/gapwatch/internal/scheduler"
	"github.com/wonny/gapwatch/internal/storage"
	"github.com/wonny/gapwatch/internal/universe"
	"github.com/wonny/gapwatch/pkg/logger"
)

const testDate = "20250314"

type fixedProvider struct{}

func (fixedProvider) Name() string { return "fixed" }

func (fixedProvider) Fetch(ctx context.Context, req contracts.QuoteRequest) (*contracts.Quote, error) {
	if req.Symbol == "MISS" {
		return nil, contracts.ErrNoQuote
	}
	return &contracts.Quote{
		Symbol:            req.Symbol,
		Open:              null.FloatFrom(10.30),
		Close:             null.FloatFrom(10.00),
		Volume:            null.FloatFrom(500_000),
		CurrentPrice:      null.FloatFrom(10.30),
		SharesOutstanding: null.FloatFrom(1_000_000),
	}, nil
}

// recordingNotifier keeps what it was asked to send
type recordingNotifier struct {
	mu       sync.Mutex
	results  []*contracts.CheckpointResult
	failures []error
	err      error
}

func (n *recordingNotifier) Notify(ctx context.Context, r *contracts.CheckpointResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, r)
	return n.err
}

func (n *recordingNotifier) NotifyFailure(ctx context.Context, date, label string, cause error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, cause)
	return n.err
}

// switchStore fails writes while down is set
type switchStore struct {
	*storage.MemoryStore
	mu   sync.Mutex
	down bool
}

func (s *switchStore) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *switchStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return errors.New("write refused")
	}
	return s.MemoryStore.Put(ctx, key, data)
}

type fixture struct {
	deps     *Deps
	blobs    *switchStore
	notifier *recordingNotifier
}

func newFixture(t *testing.T, symbols, gainers []string) *fixture {
	t.Helper()
	blobs := &switchStore{MemoryStore: storage.NewMemoryStore()}
	log := logger.Nop()
	store := dataset.NewStore(blobs, log, dataset.WithPersistRetries(0, time.Millisecond))

	opts := universe.Options{
		Sources: []contracts.SymbolSource{universe.NewStaticSource("", symbols)},
		Blobs:   storage.NewMemoryStore(),
	}
	if gainers != nil {
		opts.Gainers = universe.NewStaticSource("gainers", gainers)
	}

	sched := checkpoint.DefaultSchedule()
	proc := checkpoint.NewProcessor(store, fixedProvider{}, qualification.NewRule(sched.Qualification),
		sched, checkpoint.Config{Workers: 2, FetchTimeout: time.Second}, nil, log)

	notifier := &recordingNotifier{}
	loc := sched.Location()
	return &fixture{
		deps: &Deps{
			Processor:      proc,
			Universe:       universe.NewLoader(opts, log),
			Store:          store,
			Notifier:       notifier,
			AlertOnFailure: true,
			Logger:         log,
			Now:            func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, loc) },
		},
		blobs:    blobs,
		notifier: notifier,
	}
}

func TestAll(t *testing.T) {
	f := newFixture(t, []string{"AAA"}, nil)

	all, err := All(f.deps)
	require.NoError(t, err)

	var names []string
	for _, j := range all {
		names = append(names, j.Name())
	}
	assert.Equal(t, "initial_pull", names[0])
	assert.Contains(t, names, "checkpoint_0850")
	assert.Equal(t, "pending_cleanup", names[len(names)-1])
	assert.Len(t, names, len(f.deps.Processor.Schedule().Labels())+2)

	s := scheduler.New(scheduler.Options{Location: time.UTC}, logger.Nop())
	require.NoError(t, Register(s, f.deps))
	assert.Len(t, s.GetAllJobs(), len(names))
}

func TestAll_TradingDates(t *testing.T) {
	f := newFixture(t, []string{"AAA"}, nil)

	all, err := All(f.deps)
	require.NoError(t, err)

	for _, j := range all {
		d, ok := j.(scheduler.TradingDayJob)
		if j.Name() == "pending_cleanup" {
			assert.False(t, ok, "cleanup spans every pending date")
			continue
		}
		require.True(t, ok, j.Name())
		assert.Equal(t, testDate, d.TradingDate(), j.Name())
	}
}

func TestCheckpointJob_RunFor(t *testing.T) {
	f := newFixture(t, []string{"AAA", "MISS"}, nil)
	job, err := NewCheckpointJob(f.deps, "08:50")
	require.NoError(t, err)
	assert.Equal(t, "0 50 08 * * MON-FRI", job.Schedule())

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, f.notifier.results, 1)
	r := f.notifier.results[0]
	assert.Equal(t, testDate, r.Date)
	assert.Equal(t, 2, r.TotalCount)
	assert.Equal(t, 1, r.QualifiedCount)
	assert.Equal(t, 1, r.FailedCount)
	assert.Empty(t, f.notifier.failures)

	_, err = f.blobs.Get(context.Background(), dataset.Key(testDate))
	assert.NoError(t, err)
}

func TestCheckpointJob_NotifierErrorIgnored(t *testing.T) {
	f := newFixture(t, []string{"AAA"}, nil)
	f.notifier.err = errors.New("sns throttled")
	job, err := NewCheckpointJob(f.deps, "08:50")
	require.NoError(t, err)

	_, err = job.RunFor(context.Background(), testDate)
	assert.NoError(t, err)
}

func TestCheckpointJob_StorageFailureAlerts(t *testing.T) {
	f := newFixture(t, []string{"AAA"}, nil)
	f.blobs.setDown(true)
	job, err := NewCheckpointJob(f.deps, "08:50")
	require.NoError(t, err)

	_, err = job.RunFor(context.Background(), testDate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, checkpoint.ErrCheckpointFailed))

	require.Len(t, f.notifier.failures, 1)
	assert.Empty(t, f.notifier.results)

	f.deps.AlertOnFailure = false
	_, err = job.RunFor(context.Background(), testDate)
	require.Error(t, err)
	assert.Len(t, f.notifier.failures, 1)
}

func TestInitialPullJob(t *testing.T) {
	f := newFixture(t, []string{"AAA", "BBB"}, []string{"CCC", "BBB"})
	job, err := NewInitialPullJob(f.deps, "08:35")
	require.NoError(t, err)

	table, err := job.RunFor(context.Background(), testDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, table.Symbols())
	assert.False(t, table.Row("AAA").TopGainer)
	assert.True(t, table.Row("BBB").TopGainer)
	assert.True(t, table.Row("CCC").TopGainer)

	// checkpoints keep the flag
	cp, err := NewCheckpointJob(f.deps, "08:45")
	require.NoError(t, err)
	_, err = cp.RunFor(context.Background(), testDate)
	require.NoError(t, err)

	stored, err := f.deps.Store.Load(context.Background(), testDate)
	require.NoError(t, err)
	assert.True(t, stored.Row("CCC").TopGainer)
	assert.True(t, stored.HasLabel("08:45"))
}

func TestPendingCleanupJob(t *testing.T) {
	f := newFixture(t, []string{"AAA"}, nil)
	job, err := NewCheckpointJob(f.deps, "08:50")
	require.NoError(t, err)

	f.blobs.setDown(true)
	_, err = job.RunFor(context.Background(), "20250313")
	require.Error(t, err)
	_, err = job.RunFor(context.Background(), testDate)
	require.Error(t, err)
	assert.Equal(t, []string{"20250313", testDate}, f.deps.Store.PendingDates())

	cleanup := NewPendingCleanupJob(f.deps)

	// still down: yesterday is dropped, today is kept for the next attempt
	assert.Error(t, cleanup.Run(context.Background()))
	assert.Equal(t, []string{testDate}, f.deps.Store.PendingDates())

	f.blobs.setDown(false)
	require.NoError(t, cleanup.Run(context.Background()))
	assert.Empty(t, f.deps.Store.PendingDates())

	stored, err := f.deps.Store.Load(context.Background(), testDate)
	require.NoError(t, err)
	assert.True(t, stored.HasLabel("08:50"))
}
