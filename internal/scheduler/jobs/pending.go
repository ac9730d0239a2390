package jobs

import (
	"context"
	"errors"
)

// PendingCleanupJob retries datasets whose persist failed. After the session
// a table that still cannot be written is dropped from memory.
type PendingCleanupJob struct {
	deps *Deps
}

// NewPendingCleanupJob creates a new pending cleanup job
func NewPendingCleanupJob(d *Deps) *PendingCleanupJob {
	return &PendingCleanupJob{deps: d}
}

// Name returns the job name
func (j *PendingCleanupJob) Name() string {
	return "pending_cleanup"
}

// Schedule returns the cron schedule (every 10 minutes)
func (j *PendingCleanupJob) Schedule() string {
	return "0 */10 * * * *"
}

// Run flushes every pending table
func (j *PendingCleanupJob) Run(ctx context.Context) error {
	d := j.deps
	today := d.Today()

	var errs []error
	for _, date := range d.Store.PendingDates() {
		log := d.Logger.WithField("date", date)

		err := d.Store.FlushPending(ctx, date)
		if err == nil {
			log.Info("Pending dataset persisted")
			continue
		}

		if date < today {
			d.Store.DropPending(date)
			log.WithError(err).Error("Dropped unpersisted dataset of a past session")
			continue
		}

		log.WithError(err).Warn("Pending dataset still not persisted")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
