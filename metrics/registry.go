package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Shared bucket presets.
var (
	// DurationBuckets covers sub-millisecond codec work up to multi-second stalls.
	DurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

	// SizeBuckets covers frame, blob and channel sizes in bytes.
	SizeBuckets = prometheus.ExponentialBuckets(256, 4, 9)

	// CountBuckets covers per-channel block, frame and tx counts.
	CountBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}

	// RatioBuckets covers compression ratios.
	RatioBuckets = prometheus.LinearBuckets(0.1, 0.1, 12)
)

// ComponentRegistry creates metrics scoped to a namespace and subsystem.
type ComponentRegistry struct {
	namespace string
	subsystem string
	factory   promauto.Factory
}

// NewComponentRegistry registers metrics against the default prometheus registerer.
func NewComponentRegistry(namespace, subsystem string) *ComponentRegistry {
	return NewComponentRegistryWith(prometheus.DefaultRegisterer, namespace, subsystem)
}

// NewComponentRegistryWith registers metrics against reg. A nil reg creates
// unregistered collectors, which is what tests want.
func NewComponentRegistryWith(reg prometheus.Registerer, namespace, subsystem string) *ComponentRegistry {
	return &ComponentRegistry{
		namespace: namespace,
		subsystem: subsystem,
		factory:   promauto.With(reg),
	}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.factory.NewCounter(opts)
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.factory.NewCounterVec(opts, labels)
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.factory.NewGauge(opts)
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.factory.NewGaugeVec(opts, labels)
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.factory.NewHistogram(opts)
}

func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return r.factory.NewHistogramVec(opts, labels)
}
