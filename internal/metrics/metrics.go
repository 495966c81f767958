// Package metrics exposes ingestion counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Recorder is what the ingestion loop reports to. A nil *Collector is a valid
// Recorder that records nothing.
type Recorder interface {
	LineReceived()
	DecodeFailed(reason string)
	ReadingStored(kind string)
	PersistFailed(op string)
	AlarmRaised(kind, parameter, classification string)
	CycleDuration(d time.Duration)
	SetState(state string)
}

var states = []string{"idle", "configuring", "streaming", "stopped", "faulted"}

// Collector holds the Prometheus collectors on a private registry.
type Collector struct {
	registry      *prometheus.Registry
	lines         prometheus.Counter
	decodeErrors  *prometheus.CounterVec
	readings      *prometheus.CounterVec
	persistErrors *prometheus.CounterVec
	alarms        *prometheus.CounterVec
	cycle         prometheus.Histogram
	state         *prometheus.GaugeVec
}

// New registers the collector set on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensor_lines_received_total",
			Help: "Lines read from the sensor link.",
		}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_decode_failures_total",
			Help: "Lines dropped because they carried no usable reading.",
		}, []string{"reason"}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_readings_stored_total",
			Help: "Readings persisted, by kind.",
		}, []string{"kind"}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_persist_failures_total",
			Help: "Failed persistence calls, by operation.",
		}, []string{"op"}),
		alarms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_alarms_total",
			Help: "Threshold violations detected.",
		}, []string{"kind", "parameter", "classification"}),
		cycle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensor_cycle_duration_seconds",
			Help:    "Time spent processing one streaming cycle.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensor_loop_state",
			Help: "1 for the ingestion loop's current state, 0 otherwise.",
		}, []string{"state"}),
	}

	c.registry.MustRegister(
		c.lines,
		c.decodeErrors,
		c.readings,
		c.persistErrors,
		c.alarms,
		c.cycle,
		c.state,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// LineReceived counts one line read from the device.
func (c *Collector) LineReceived() {
	if c == nil {
		return
	}
	c.lines.Inc()
}

// DecodeFailed counts a dropped line by reason.
func (c *Collector) DecodeFailed(reason string) {
	if c == nil {
		return
	}
	c.decodeErrors.WithLabelValues(reason).Inc()
}

// ReadingStored counts a persisted reading of kind.
func (c *Collector) ReadingStored(kind string) {
	if c == nil {
		return
	}
	c.readings.WithLabelValues(kind).Inc()
}

// PersistFailed counts a failed storage operation op.
func (c *Collector) PersistFailed(op string) {
	if c == nil {
		return
	}
	c.persistErrors.WithLabelValues(op).Inc()
}

// AlarmRaised counts one threshold violation.
func (c *Collector) AlarmRaised(kind, parameter, classification string) {
	if c == nil {
		return
	}
	c.alarms.WithLabelValues(kind, parameter, classification).Inc()
}

// CycleDuration records how long one sampling cycle took.
func (c *Collector) CycleDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.cycle.Observe(d.Seconds())
}

// SetState marks state as the current lifecycle state and clears the others.
func (c *Collector) SetState(state string) {
	if c == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		c.state.WithLabelValues(s).Set(v)
	}
}

// Serve exposes the registry over HTTP until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr, path string, logger zerolog.Logger) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Str("path", path).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

var _ Recorder = (*Collector)(nil)
