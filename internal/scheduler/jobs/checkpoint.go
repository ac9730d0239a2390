package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/gapwatch/internal/checkpoint"
	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/internal/notify"
)

// CheckpointJob runs one checkpoint label every trading day
type CheckpointJob struct {
	deps     *Deps
	label    string
	schedule string
}

// NewCheckpointJob creates the job for label
func NewCheckpointJob(d *Deps, label string) (*CheckpointJob, error) {
	spec, err := checkpoint.CronSpec(label)
	if err != nil {
		return nil, err
	}
	return &CheckpointJob{deps: d, label: label, schedule: spec}, nil
}

// Name returns the job name, e.g. "checkpoint_0850"
func (j *CheckpointJob) Name() string {
	return JobName(j.label)
}

// JobName is the scheduler job name of checkpoint label
func JobName(label string) string {
	return "checkpoint_" + label[0:2] + label[3:5]
}

// Schedule returns the cron schedule (weekdays at the label's time)
func (j *CheckpointJob) Schedule() string {
	return j.schedule
}

// TradingDate is the date a scheduled run acts on
func (j *CheckpointJob) TradingDate() string {
	return j.deps.Today()
}

// Run executes today's checkpoint
func (j *CheckpointJob) Run(ctx context.Context) error {
	_, err := j.RunFor(ctx, j.deps.Today())
	return err
}

// RunFor executes the checkpoint for date and notifies. A checkpoint-fatal
// error is alerted (when enabled) and returned; notifier errors are not.
func (j *CheckpointJob) RunFor(ctx context.Context, date string) (*contracts.CheckpointResult, error) {
	d := j.deps
	log := d.Logger.WithFields(map[string]interface{}{
		"date":       date,
		"checkpoint": j.label,
	})

	u, err := d.Universe.Load(ctx, date)
	if err != nil {
		err = fmt.Errorf("%w: load universe: %w", checkpoint.ErrCheckpointFailed, err)
		log.WithError(err).Error("Checkpoint aborted")
		notify.DispatchFailure(ctx, d.Notifier, d.AlertOnFailure, date, j.label, err, d.Metrics, log)
		return nil, err
	}

	result, err := d.Processor.Run(ctx, date, j.label, u.Symbols)
	if err != nil {
		notify.DispatchFailure(ctx, d.Notifier, d.AlertOnFailure, date, j.label, err, d.Metrics, log)
		return nil, err
	}

	if result.AllFetchesFailed() {
		log.WithField("failed", result.FailedCount).Error("Every quote fetch failed")
	}

	notify.Dispatch(ctx, d.Notifier, result, d.Metrics, log)
	return result, nil
}
