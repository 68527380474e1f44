package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/imagesize-intrinsic/internal/progress"
)

// PrometheusSink exports image discovery and outcome counters.
type PrometheusSink struct {
	discovered prometheus.Counter
	settled    *prometheus.CounterVec
	pending    prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgsize_images_discovered_total",
			Help: "Image tags discovered across processed pages.",
		}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imgsize_images_settled_total",
			Help: "Image tags settled, partitioned by outcome status.",
		}, []string{"status"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imgsize_images_pending",
			Help: "Discovered image tags that have not settled yet.",
		}),
	}
	for _, collector := range []prometheus.Collector{s.discovered, s.settled, s.pending} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Kind {
		case progress.KindGrow:
			s.discovered.Add(float64(evt.N))
			s.pending.Add(float64(evt.N))
		case progress.KindAdvance:
			status := string(evt.Status)
			if status == "" {
				status = "unknown"
			}
			s.settled.WithLabelValues(status).Inc()
			s.pending.Dec()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
