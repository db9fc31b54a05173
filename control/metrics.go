// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for system-level monitoring.
// Wraps a Prometheus registry so schedulers and reactors can publish
// counters and sampled gauges under their own name label.

package control

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hioload_fiber"

// MetricsRegistry holds the Prometheus registry shared by runtime components.
// A nil *MetricsRegistry is valid and discards everything.
type MetricsRegistry struct {
	mu       sync.RWMutex
	reg      *prometheus.Registry
	counters map[string]*prometheus.CounterVec
	updated  time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		reg:      prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec),
	}
}

// Gatherer exposes the registry for an HTTP handler or a test.
func (mr *MetricsRegistry) Gatherer() prometheus.Gatherer {
	if mr == nil {
		return prometheus.NewRegistry()
	}
	return mr.reg
}

// Counter returns a counter for name, labelled with the owning component.
// Repeated calls with the same name and owner return the same counter.
func (mr *MetricsRegistry) Counter(name, help, owner string) prometheus.Counter {
	if mr == nil {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name})
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	vec, ok := mr.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, []string{"owner"})
		mr.reg.MustRegister(vec)
		mr.counters[name] = vec
	}
	mr.updated = time.Now()
	return vec.WithLabelValues(owner)
}

// GaugeFunc registers a gauge sampled from fn at scrape time. Registering the
// same name and owner twice keeps the first sampler.
func (mr *MetricsRegistry) GaugeFunc(name, help, owner string, fn func() float64) {
	if mr == nil {
		return
	}
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"owner": owner},
	}, fn)
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if err := mr.reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
	mr.updated = time.Now()
}

// GetSnapshot gathers every metric and flattens it to name{owner} -> value.
func (mr *MetricsRegistry) GetSnapshot() map[string]float64 {
	out := make(map[string]float64)
	if mr == nil {
		return out
	}
	families, err := mr.reg.Gather()
	if err != nil {
		return out
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "owner" {
					key += "{" + lp.GetValue() + "}"
				}
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}

// Updated reports when a metric was last registered.
func (mr *MetricsRegistry) Updated() time.Time {
	if mr == nil {
		return time.Time{}
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
