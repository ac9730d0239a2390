package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/gapwatch/internal/api/handlers"
	"github.com/wonny/gapwatch/internal/observability"
	"github.com/wonny/gapwatch/pkg/logger"
)

// HealthCheck reports whether one dependency is usable
type HealthCheck func(ctx context.Context) error

// RouterDeps carries everything the router mounts. Nil handlers are skipped.
type RouterDeps struct {
	Datasets  *handlers.DatasetHandler
	Scheduler *handlers.SchedulerHandler
	Metrics   *observability.Metrics
	Checks    map[string]HealthCheck
	Logger    *logger.Logger
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: routing lives in this function only
func NewRouter(deps RouterDeps) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(deps.Checks)).Methods("GET")

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Dataset endpoints
	if deps.Datasets != nil {
		api.HandleFunc("/datasets/{date}", deps.Datasets.GetDataset).Methods("GET")
		api.HandleFunc("/datasets/{date}/csv", deps.Datasets.GetDatasetCSV).Methods("GET")
		api.HandleFunc("/datasets/{date}/qualified", deps.Datasets.GetQualified).Methods("GET")
	}

	// Scheduler endpoints
	if deps.Scheduler != nil {
		api.HandleFunc("/scheduler/jobs", deps.Scheduler.GetJobs).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(deps.Logger))
	r.Use(recoveryMiddleware(deps.Logger))

	return r
}

// healthCheckHandler returns server health status. Any failing check
// turns the response into a 503.
func healthCheckHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  status,
			"service": "gapwatch-api",
			"checks":  results,
		})
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
