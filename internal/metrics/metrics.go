package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Tick outcomes.
const (
	OutcomeQuiet      = "quiet"
	OutcomeAlert      = "alert"
	OutcomeFetchError = "fetch_error"
	OutcomeSkipped    = "skipped"
)

// Metrics groups the collectors updated by the monitoring loop. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	ticks          *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	alerts         *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	lastPrice      prometheus.Gauge
	windowSize     prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New(pair string) *Metrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"pair": pair}

	m := &Metrics{
		registry: reg,
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "btcwatch",
			Name:        "ticks_total",
			Help:        "Monitoring ticks by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "btcwatch",
			Name:        "fetch_errors_total",
			Help:        "Price fetch failures by kind.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "btcwatch",
			Name:        "alerts_total",
			Help:        "Threshold crossings by horizon and direction.",
			ConstLabels: constLabels,
		}, []string{"horizon", "direction"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "btcwatch",
			Name:        "notify_failures_total",
			Help:        "Failed alert deliveries by channel.",
			ConstLabels: constLabels,
		}, []string{"channel"}),
		lastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "btcwatch",
			Name:        "last_price",
			Help:        "Most recent fetched price.",
			ConstLabels: constLabels,
		}),
		windowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "btcwatch",
			Name:        "window_samples",
			Help:        "Samples currently held in the rolling window.",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(m.ticks, m.fetchErrors, m.alerts, m.notifyFailures, m.lastPrice, m.windowSize)
	return m
}

// Tick counts one tick with the given outcome.
func (m *Metrics) Tick(outcome string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
}

// FetchError counts a failed price fetch.
func (m *Metrics) FetchError(kind string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(kind).Inc()
}

// Sample records the latest price and window occupancy.
func (m *Metrics) Sample(price float64, windowLen int) {
	if m == nil {
		return
	}
	m.lastPrice.Set(price)
	m.windowSize.Set(float64(windowLen))
}

// Alert counts a threshold crossing.
func (m *Metrics) Alert(horizon, direction string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(horizon, direction).Inc()
}

// NotifyFailure counts a failed delivery.
func (m *Metrics) NotifyFailure(channel string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(channel).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
