package handlers

import (
	"net/http"
	"sort"

	"github.com/wonny/gapwatch/internal/scheduler"
)

// JobStatsProvider reports scheduler job statistics
type JobStatsProvider interface {
	GetJobStats() map[string]scheduler.JobStats
}

// SchedulerHandler exposes job statistics
type SchedulerHandler struct {
	stats JobStatsProvider
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(stats JobStatsProvider) *SchedulerHandler {
	return &SchedulerHandler{stats: stats}
}

// GetJobs returns every job's statistics ordered by name
// GET /api/scheduler/jobs
func (h *SchedulerHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	all := h.stats.GetJobStats()

	out := make([]scheduler.JobStats, 0, len(all))
	for _, s := range all {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })

	respondJSON(w, http.StatusOK, out)
}
