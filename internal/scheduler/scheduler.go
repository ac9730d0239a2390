// Package scheduler runs jobs on cron schedules in the market timezone.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/gapwatch/pkg/logger"
)

// Options configures a Scheduler
type Options struct {
	Location   *time.Location
	MaxRetries int
	RetryDelay time.Duration
}

// Scheduler manages scheduled jobs.
// Job runs never overlap: a checkpoint that starts while another job is
// still running waits for it.
// ⭐ SSOT: schedule management happens only in this scheduler
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	jobs    map[string]Job
	entries map[string]cron.EntryID
	history map[string]*JobHistory
	mu      sync.RWMutex

	// serializes job execution
	runMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// New creates a new scheduler
func New(opts Options, log *logger.Logger) *Scheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		logger:     log.WithField("module", "scheduler"),
		jobs:       make(map[string]Job),
		entries:    make(map[string]cron.EntryID),
		history:    make(map[string]*JobHistory),
		ctx:        ctx,
		cancel:     cancel,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// AddJob adds a job to the scheduler
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobName := job.Name()

	if _, exists := s.jobs[jobName]; exists {
		return fmt.Errorf("job %s already exists", jobName)
	}

	id, err := s.cron.AddFunc(job.Schedule(), func() {
		_ = s.runJob(s.ctx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", jobName, err)
	}

	s.jobs[jobName] = job
	s.entries[jobName] = id
	s.history[jobName] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// RemoveJob removes a job from the scheduler
func (s *Scheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobName]; !exists {
		return fmt.Errorf("job %s not found", jobName)
	}

	s.cron.Remove(s.entries[jobName])
	delete(s.jobs, jobName)
	delete(s.entries, jobName)
	s.logger.WithField("job", jobName).Info("Job removed from scheduler")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops the scheduler, cancels running jobs and waits for them
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob runs a specific job immediately (outside of schedule)
func (s *Scheduler) RunJob(jobName string) error {
	job, err := s.job(jobName)
	if err != nil {
		return err
	}

	go func() { _ = s.runJob(s.ctx, job) }()
	return nil
}

// RunJobSync runs a job now and returns its final error
func (s *Scheduler) RunJobSync(ctx context.Context, jobName string) error {
	job, err := s.job(jobName)
	if err != nil {
		return err
	}
	return s.runJob(ctx, job)
}

func (s *Scheduler) job(jobName string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobName)
	}
	return job, nil
}

// runJob executes a job with retry logic
func (s *Scheduler) runJob(ctx context.Context, job Job) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	jobName := job.Name()
	tradingDate := ""
	if d, ok := job.(TradingDayJob); ok {
		tradingDate = d.TradingDate()
	}
	log := s.logger.WithJob(jobName, tradingDate)
	startTime := time.Now()

	log.Info("Job started")

	var lastErr error
	var success bool
	attempts := 0

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		attempts++
		err := job.Run(ctx)
		if err == nil {
			success = true
			break
		}

		lastErr = err
		if ctx.Err() != nil || attempt == s.maxRetries {
			break
		}

		log.WithError(err).WithField("attempt", attempt+1).Warn("Job execution failed, retrying")

		select {
		case <-ctx.Done():
		case <-time.After(s.retryDelay):
		}
	}

	endTime := time.Now()
	duration := endTime.Sub(startTime)

	result := JobResult{
		JobName:     jobName,
		TradingDate: tradingDate,
		StartTime:   startTime,
		EndTime:     endTime,
		Duration:    duration,
		Success:     success,
		Attempts:    attempts,
	}
	if !success && lastErr != nil {
		result.Error = lastErr.Error()
	}

	streak := 0
	s.mu.Lock()
	if history, exists := s.history[jobName]; exists {
		history.AddResult(result)
		streak = history.ConsecutiveFailures()
	}
	s.mu.Unlock()

	if success {
		log.WithField("duration", duration).Info("Job completed successfully")
		return nil
	}

	log.WithError(lastErr).WithFields(map[string]interface{}{
		"duration":             duration,
		"attempts":             attempts,
		"consecutive_failures": streak,
	}).Error("Job failed after all retries")
	return lastErr
}

// GetJobHistory returns the history for a specific job
func (s *Scheduler) GetJobHistory(jobName string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[jobName]
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobName)
	}

	return history, nil
}

// GetAllJobs returns all registered job names, sorted
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]string, 0, len(s.jobs))
	for jobName := range s.jobs {
		jobs = append(jobs, jobName)
	}
	sort.Strings(jobs)

	return jobs
}

// GetJobStats returns statistics for all jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats)

	for jobName, job := range s.jobs {
		history := s.history[jobName]
		latestResults := history.GetLatestResults(1)
		failedResults := history.GetFailedResults()

		var lastRun, lastSuccess, lastFailure, nextRun *time.Time
		var lastTradingDate string

		if len(latestResults) > 0 {
			lastResult := latestResults[0]
			lastRun = &lastResult.StartTime
			lastTradingDate = lastResult.TradingDate

			if lastResult.Success {
				lastSuccess = &lastResult.StartTime
			} else {
				lastFailure = &lastResult.StartTime
			}
		}

		if next := s.cron.Entry(s.entries[jobName]).Next; !next.IsZero() {
			nextRun = &next
		}

		stats[jobName] = JobStats{
			JobName:             jobName,
			Schedule:            job.Schedule(),
			TotalRuns:           len(history.Results),
			SuccessCount:        len(history.Results) - len(failedResults),
			FailureCount:        len(failedResults),
			SuccessRate:         history.GetSuccessRate(),
			ConsecutiveFailures: history.ConsecutiveFailures(),
			LastTradingDate:     lastTradingDate,
			LastRun:             lastRun,
			LastSuccess:         lastSuccess,
			LastFailure:         lastFailure,
			NextRun:             nextRun,
		}
	}

	return stats
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string  `json:"job_name"`
	Schedule     string  `json:"schedule"`
	TotalRuns    int     `json:"total_runs"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	SuccessRate  float64 `json:"success_rate"`

	// ConsecutiveFailures counts failed runs since the last success
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastTradingDate     string `json:"last_trading_date,omitempty"`

	LastRun     *time.Time `json:"last_run,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
}
