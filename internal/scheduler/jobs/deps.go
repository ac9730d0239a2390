// Package jobs holds the scheduled jobs of the checkpoint pipeline.
package jobs

import (
	"fmt"
	"time"

	"github.com/wonny/gapwatch/internal/checkpoint"
	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/internal/dataset"
	"github.com/wonny/gapwatch/internal/observability"
	"github.com/wonny/gapwatch/internal/scheduler"
	"github.com/wonny/gapwatch/internal/universe"
	"github.com/wonny/gapwatch/pkg/logger"
)

// Deps are the collaborators shared by every job
type Deps struct {
	Processor      *checkpoint.Processor
	Universe       *universe.Loader
	Store          *dataset.Store
	Notifier       contracts.Notifier
	AlertOnFailure bool
	Metrics        *observability.Metrics
	Logger         *logger.Logger

	// Now is the clock; nil means time.Now
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Today returns the trading date in the schedule's timezone
func (d *Deps) Today() string {
	return dataset.DateKey(d.now().In(d.Processor.Schedule().Location()))
}

// All builds the initial pull, one job per checkpoint and the pending cleanup
func All(d *Deps) ([]scheduler.Job, error) {
	sched := d.Processor.Schedule()

	var out []scheduler.Job
	if sched.InitialPull != "" {
		j, err := NewInitialPullJob(d, sched.InitialPull)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}

	for _, label := range sched.Labels() {
		j, err := NewCheckpointJob(d, label)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}

	out = append(out, NewPendingCleanupJob(d))
	return out, nil
}

// Register adds every job to s
func Register(s *scheduler.Scheduler, d *Deps) error {
	all, err := All(d)
	if err != nil {
		return err
	}
	for _, j := range all {
		if err := s.AddJob(j); err != nil {
			return fmt.Errorf("register %s: %w", j.Name(), err)
		}
	}
	return nil
}
