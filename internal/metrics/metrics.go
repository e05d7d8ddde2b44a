package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apextrack_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apextrack_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Session metrics
	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apextrack_session_transitions_total",
			Help: "Total usage session lifecycle transitions",
		},
		[]string{"transition"},
	)

	LiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "apextrack_live_sessions",
			Help: "Number of active or paused usage sessions",
		},
	)

	UsageMinutesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apextrack_usage_minutes_recorded_total",
			Help: "Total usage minutes recorded by completed sessions",
		},
		[]string{"type"},
	)

	// Sweeper metrics
	SweepRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "apextrack_sweep_runs_total",
			Help: "Total abandonment sweeps executed",
		},
	)

	SweepAbandoned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "apextrack_sweep_abandoned_total",
			Help: "Sessions marked abandoned by the sweeper",
		},
	)

	SweepFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "apextrack_sweep_failures_total",
			Help: "Sessions the sweeper failed to abandon",
		},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apextrack_sweep_duration_seconds",
			Help:    "Abandonment sweep duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SessionTransitions,
		LiveSessions,
		UsageMinutesRecorded,
		SweepRuns,
		SweepAbandoned,
		SweepFailures,
		SweepDuration,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler exposes the server's mux, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe blocks serving metrics until Shutdown is called
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
