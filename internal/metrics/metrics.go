// Package metrics exposes Prometheus metrics and the health endpoint.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the ledger service.
type Metrics struct {
	EntriesAdded       prometheus.Counter
	EntriesDeleted     prometheus.Counter
	ClearAlls          prometheus.Counter
	ValidationFailures *prometheus.CounterVec // labels: reason
	Resolutions        *prometheus.CounterVec // labels: outcome
	PersistErrors      prometheus.Counter

	PersistDur    prometheus.Histogram
	ResolutionDur prometheus.Histogram

	ConnectedClients prometheus.Gauge
	WarrantsTracked  prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		EntriesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_entries_added_total",
			Help: "Grid entries accepted into the ledger",
		}),
		EntriesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_entries_deleted_total",
			Help: "Delete-entry commands processed (including no-ops)",
		}),
		ClearAlls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_clear_all_total",
			Help: "Clear-all commands executed",
		}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_validation_failures_total",
			Help: "Rejected add-entry commands by reason",
		}, []string{"reason"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_resolutions_total",
			Help: "Underlying-stock resolution attempts by outcome",
		}, []string{"outcome"}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_persist_errors_total",
			Help: "Failed snapshot writes to durable storage",
		}),
		PersistDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_persist_duration_seconds",
			Help:    "Snapshot persistence latency",
			Buckets: prometheus.DefBuckets,
		}),
		ResolutionDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_resolution_duration_seconds",
			Help:    "End-to-end resolution attempt latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_ws_clients",
			Help: "Currently connected WebSocket clients",
		}),
		WarrantsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_warrants_tracked",
			Help: "Warrants currently in the ledger",
		}),
	}

	prometheus.MustRegister(
		m.EntriesAdded,
		m.EntriesDeleted,
		m.ClearAlls,
		m.ValidationFailures,
		m.Resolutions,
		m.PersistErrors,
		m.PersistDur,
		m.ResolutionDur,
		m.ConnectedClients,
		m.WarrantsTracked,
	)

	return m
}

// HealthStatus represents service health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK        bool
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	// live figures supplied by the caller
	ClientCount  func() int
	WarrantCount func() int
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), SQLiteOK: true}
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if db != nil {
					h.CheckSQLite(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	body := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		Clients         int     `json:"ws_clients"`
		Warrants        int     `json:"warrants"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}
	if h.ClientCount != nil {
		body.Clients = h.ClientCount()
	}
	if h.WarrantCount != nil {
		body.Warrants = h.WarrantCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
