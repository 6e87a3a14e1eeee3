package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's counters. Each instance owns its registry so
// tests can construct isolated ones.
type Metrics struct {
	registry *prometheus.Registry

	JobsProcessed *prometheus.CounterVec
	ChangeBatches prometheus.Counter
	Mentions      prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blog_generation_jobs_total",
			Help: "Generation jobs handled, by kind and status.",
		}, []string{"kind", "status"}),
		ChangeBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blog_change_batches_total",
			Help: "Change-feed batches planned into jobs.",
		}),
		Mentions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blog_mentions_received_total",
			Help: "Webmentions successfully ingested.",
		}),
	}

	reg.MustRegister(m.JobsProcessed, m.ChangeBatches, m.Mentions)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
