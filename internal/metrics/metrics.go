package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "commission_scout"

// Recorder owns the scout's Prometheus collectors. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	verdicts      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	tokens        *prometheus.CounterVec
	posts         *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Classification verdicts by deciding stage and outcome",
			},
			[]string{"stage", "is_commission"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classification_failures_total",
				Help:      "Classifications that ended without a verdict",
			},
			[]string{"kind"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Tokens charged per credential identifier",
			},
			[]string{"credential"},
		),
		posts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "posts_total",
				Help:      "Posts seen by the pipeline by outcome",
			},
			[]string{"outcome"},
		),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Pipeline cycles by status",
			},
			[]string{"status"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Wall time of a pipeline cycle",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),
	}

	r.registry.MustRegister(r.verdicts, r.failures, r.tokens, r.posts, r.cycles, r.cycleDuration)
	return r
}

func (r *Recorder) ObserveVerdict(stage string, isCommission bool) {
	if r == nil {
		return
	}
	r.verdicts.WithLabelValues(stage, strconv.FormatBool(isCommission)).Inc()
}

func (r *Recorder) ObserveFailure(kind string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(kind).Inc()
}

func (r *Recorder) AddTokens(credentialID string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.tokens.WithLabelValues(credentialID).Add(float64(n))
}

func (r *Recorder) AddPosts(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.posts.WithLabelValues(outcome).Add(float64(n))
}

func (r *Recorder) ObserveCycle(d time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.cycles.WithLabelValues(status).Inc()
	r.cycleDuration.Observe(d.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
