// Package api serves the daily invoice metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/facturaIA/invoice-metrics/internal/auth"
	"github.com/facturaIA/invoice-metrics/internal/db"
	"github.com/facturaIA/invoice-metrics/internal/report"
	"github.com/facturaIA/invoice-metrics/internal/services"
)

const Version = "1.0.0"

// Presigner issues temporary links to stored objects.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Options wires a Handler. Pool and Presigner may be nil; the endpoints that
// need them answer 503.
type Options struct {
	Pool            db.Pool
	Schema          string
	Presigner       Presigner
	PresignTTL      time.Duration
	MetricsTemplate string
	HTML            report.HTMLOptions
	Auth            *auth.Service
}

// Handler handles HTTP requests for daily metrics
type Handler struct {
	opts Options
}

// NewHandler creates a new API handler
func NewHandler(opts Options) *Handler {
	if opts.MetricsTemplate == "" {
		opts.MetricsTemplate = "metrics/{yyyy}/{mm}/{dd}/"
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 24 * time.Hour
	}
	return &Handler{opts: opts}
}

// SetupRoutes configures the HTTP routes. When an auth service is set every
// route but /health and /api/login requires a bearer token.
func (h *Handler) SetupRoutes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health).Methods("GET")
	if h.opts.Auth != nil {
		router.HandleFunc("/api/login", h.opts.Auth.LoginHandler).Methods("POST")
	}

	router.HandleFunc("/api/metrics", h.ListMetrics).Methods("GET")
	router.HandleFunc("/api/metrics/{date}", h.GetMetrics).Methods("GET")
	router.HandleFunc("/api/metrics/{date}/cases", h.GetCases).Methods("GET")
	router.HandleFunc("/api/metrics/{date}/report", h.GetReport).Methods("GET")
	router.HandleFunc("/api/metrics/{date}/report-url", h.GetReportURL).Methods("GET")

	if h.opts.Auth == nil {
		return router
	}
	return h.opts.Auth.Middleware(router)
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	Database  ServiceStatus `json:"database"`
	Storage   ServiceStatus `json:"storage"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health reports process and dependency status. A missing database marks the
// service degraded since every metrics read needs it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Database: h.checkDatabase(),
		Storage:  h.checkStorage(),
	}

	if !response.Database.Available {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase() ServiceStatus {
	if h.opts.Pool == nil {
		return ServiceStatus{
			Available: false,
			Error:     "database pool not initialized",
		}
	}
	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL",
	}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if h.opts.Presigner == nil {
		return ServiceStatus{
			Available: false,
			Error:     "storage client not initialized",
		}
	}
	return ServiceStatus{
		Available: true,
		Version:   "MinIO S3",
	}
}

// ListMetrics returns stored daily aggregates, newest first. Optional query
// parameters: from, to (YYYY-MM-DD) and limit.
func (h *Handler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.opts.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := services.ParseDate(d); err != nil {
			h.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	limit := 30
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 366 {
			h.sendError(w, http.StatusBadRequest, "limit must be between 1 and 366")
			return
		}
		limit = n
	}

	days, err := db.ListDailyAggregates(r.Context(), h.opts.Pool, h.opts.Schema, from, to, limit)
	if err != nil {
		zap.L().Error("api: list metrics", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to list metrics")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"metrics": days,
		"count":   len(days),
	})
}

// GetMetrics returns the aggregate of one date
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	date, ok := h.date(w, r)
	if !ok {
		return
	}
	if h.opts.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	day, err := db.GetDailyAggregate(r.Context(), h.opts.Pool, h.opts.Schema, date.String())
	if err != nil {
		h.sendLookupError(w, err, date)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"metrics": day,
	})
}

// date validates the {date} route variable.
func (h *Handler) date(w http.ResponseWriter, r *http.Request) (services.Partition, bool) {
	p, err := services.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return services.Partition{}, false
	}
	return p, true
}

func (h *Handler) sendLookupError(w http.ResponseWriter, err error, date services.Partition) {
	if errors.Is(err, db.ErrNotFound) {
		h.sendError(w, http.StatusNotFound, "no metrics for "+date.String())
		return
	}
	zap.L().Error("api: lookup", zap.String("date", date.String()), zap.Error(err))
	h.sendError(w, http.StatusInternalServerError, "failed to load metrics")
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
