package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CoverageCollector bundles Prometheus metrics for the coverage widget and
// its HTTP surface.
type CoverageCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	Resolves        prometheus.Counter
	ResolveDuration prometheus.Histogram
	RejectedEdits   *prometheus.CounterVec

	Stations        prometheus.Gauge
	Devices         prometheus.Gauge
	AssignedDevices prometheus.Gauge
}

// NewCoverageCollector registers coverage metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCoverageCollector(reg prometheus.Registerer) (*CoverageCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coverage_http_requests_total",
		Help: "Total number of handled API requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"}), "coverage_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coverage_http_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"route", "method"}), "coverage_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	resolves, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coverage_resolves_total",
		Help: "Number of times the coverage index was recomputed.",
	}), "coverage_resolves_total")
	if err != nil {
		return nil, err
	}

	resolveDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coverage_resolve_duration_seconds",
		Help:    "Time spent recomputing the coverage index.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
	}), "coverage_resolve_duration_seconds")
	if err != nil {
		return nil, err
	}

	rejected, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coverage_rejected_edits_total",
		Help: "Field edits rejected by input validation, labeled by entity kind and field.",
	}, []string{"kind", "field"}), "coverage_rejected_edits_total")
	if err != nil {
		return nil, err
	}

	stations, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coverage_stations",
		Help: "Current number of stations.",
	}), "coverage_stations")
	if err != nil {
		return nil, err
	}
	devices, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coverage_devices",
		Help: "Current number of devices.",
	}), "coverage_devices")
	if err != nil {
		return nil, err
	}
	assigned, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coverage_assigned_devices",
		Help: "Devices currently served by some station.",
	}), "coverage_assigned_devices")
	if err != nil {
		return nil, err
	}

	return &CoverageCollector{
		gatherer:        gatherer,
		HTTPRequests:    requests,
		HTTPDurations:   durations,
		Resolves:        resolves,
		ResolveDuration: resolveDuration,
		RejectedEdits:   rejected,
		Stations:        stations,
		Devices:         devices,
		AssignedDevices: assigned,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *CoverageCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetEntityCounts updates the station/device gauges.
func (c *CoverageCollector) SetEntityCounts(stations, devices int) {
	if c == nil {
		return
	}
	c.Stations.Set(float64(stations))
	c.Devices.Set(float64(devices))
}

// ObserveResolve records one coverage recomputation.
func (c *CoverageCollector) ObserveResolve(d time.Duration, assigned int) {
	if c == nil {
		return
	}
	c.Resolves.Inc()
	c.ResolveDuration.Observe(d.Seconds())
	c.AssignedDevices.Set(float64(assigned))
}

// IncRejectedEdit counts a field edit rejected by validation.
func (c *CoverageCollector) IncRejectedEdit(kind, field string) {
	if c == nil {
		return
	}
	c.RejectedEdits.WithLabelValues(kind, field).Inc()
}

// ObserveHTTP records one API request.
func (c *CoverageCollector) ObserveHTTP(route, method string, code int, d time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	c.HTTPRequests.WithLabelValues(route, method, fmt.Sprint(code)).Inc()
	c.HTTPDurations.WithLabelValues(route, method).Observe(d.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
