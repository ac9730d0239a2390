package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/gapwatch/internal/checkpoint"
	"github.com/wonny/gapwatch/internal/dataset"
)

// InitialPullJob fixes the day's universe and creates its dataset before
// the first checkpoint
type InitialPullJob struct {
	deps     *Deps
	schedule string
}

// NewInitialPullJob creates the job scheduled at label
func NewInitialPullJob(d *Deps, label string) (*InitialPullJob, error) {
	spec, err := checkpoint.CronSpec(label)
	if err != nil {
		return nil, err
	}
	return &InitialPullJob{deps: d, schedule: spec}, nil
}

// Name returns the job name
func (j *InitialPullJob) Name() string {
	return "initial_pull"
}

// Schedule returns the cron schedule
func (j *InitialPullJob) Schedule() string {
	return j.schedule
}

// TradingDate is the date a scheduled run creates
func (j *InitialPullJob) TradingDate() string {
	return j.deps.Today()
}

// Run creates today's dataset
func (j *InitialPullJob) Run(ctx context.Context) error {
	_, err := j.RunFor(ctx, j.deps.Today())
	return err
}

// RunFor loads the universe for date, creates (or reloads) the table, marks
// top gainers and persists it
func (j *InitialPullJob) RunFor(ctx context.Context, date string) (*dataset.Table, error) {
	d := j.deps
	log := d.Logger.WithField("date", date)

	u, err := d.Universe.Load(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}

	table, err := d.Store.LoadOrCreate(ctx, date, u.Symbols)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	marked := table.MarkTopGainers(u.TopGainers)

	if err := d.Store.Persist(ctx, table); err != nil {
		return nil, fmt.Errorf("persist dataset: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"symbols":     table.Len(),
		"top_gainers": marked,
		"source":      u.Source,
	}).Info("Initial pull completed")
	return table, nil
}
