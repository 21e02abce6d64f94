// Package metrics records load and read activity of the caches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kind names the operation being measured
type Kind string

const (
	KindEntity Kind = "entity"
	KindSearch Kind = "search"
	KindPage   Kind = "page"
)

// Outcome is how a load settled
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Recorder receives cache activity. Implementations must be safe for
// concurrent use.
type Recorder interface {
	LoadStarted(kind Kind)
	LoadFinished(kind Kind, outcome Outcome, elapsed time.Duration)
	// Read reports a read served from cache (hit) or one that triggered a
	// background load (miss)
	Read(kind Kind, hit bool)
}

// Noop discards everything. It is the default recorder.
type Noop struct{}

func (Noop) LoadStarted(Kind) {}
func (Noop) LoadFinished(Kind, Outcome, time.Duration) {}
func (Noop) Read(Kind, bool) {}

// Prometheus exports cache activity as Prometheus collectors
type Prometheus struct {
	loads    *prometheus.CounterVec
	reads    *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

// NewPrometheus creates the collectors under namespace and registers them
// with reg. A nil reg leaves them unregistered.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "loads_total",
		}, []string{"kind", "outcome"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "reads_total",
		}, []string{"kind", "result"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "loads_in_flight",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "load_duration_seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"kind"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{p.loads, p.reads, p.inFlight, p.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// LoadStarted implements Recorder
func (p *Prometheus) LoadStarted(kind Kind) {
	p.inFlight.WithLabelValues(string(kind)).Inc()
}

// LoadFinished implements Recorder
func (p *Prometheus) LoadFinished(kind Kind, outcome Outcome, elapsed time.Duration) {
	p.inFlight.WithLabelValues(string(kind)).Dec()
	p.loads.WithLabelValues(string(kind), string(outcome)).Inc()
	p.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// Read implements Recorder
func (p *Prometheus) Read(kind Kind, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.reads.WithLabelValues(string(kind), result).Inc()
}
