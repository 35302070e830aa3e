package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NameFunc resolves an agent id to its display name
type NameFunc func(agentID string) string

// Exporter exposes aggregator snapshots as prometheus metrics, read on scrape
type Exporter struct {
	aggregator *Aggregator
	names      NameFunc

	requests     *prometheus.Desc
	errors       *prometheus.Desc
	successRate  *prometheus.Desc
	responseTime *prometheus.Desc
	memory       *prometheus.Desc
	cpu          *prometheus.Desc
}

// NewExporter creates a collector over the aggregator. names may be nil.
func NewExporter(aggregator *Aggregator, names NameFunc) *Exporter {
	labels := []string{"agent_id", "agent_name"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("agentwatch", "agent", name), help, labels, nil)
	}

	return &Exporter{
		aggregator:   aggregator,
		names:        names,
		requests:     desc("requests_total", "Completed correlated requests."),
		errors:       desc("errors_total", "Failed requests and error-level log lines."),
		successRate:  desc("success_rate_pct", "Requests over requests plus errors, in percent."),
		responseTime: desc("response_time_ms", "Most recent round-trip latency."),
		memory:       desc("memory_mb", "Resident memory of the agent process."),
		cpu:          desc("cpu_pct", "CPU usage of the agent process."),
	}
}

// Describe implements prometheus.Collector
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.requests
	ch <- e.errors
	ch <- e.successRate
	ch <- e.responseTime
	ch <- e.memory
	ch <- e.cpu
}

// Collect implements prometheus.Collector
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	for id, m := range e.aggregator.All() {
		name := id
		if e.names != nil {
			if n := e.names(id); n != "" {
				name = n
			}
		}

		ch <- prometheus.MustNewConstMetric(e.requests, prometheus.CounterValue, float64(m.RequestCount), id, name)
		ch <- prometheus.MustNewConstMetric(e.errors, prometheus.CounterValue, float64(m.ErrorCount), id, name)
		ch <- prometheus.MustNewConstMetric(e.successRate, prometheus.GaugeValue, m.SuccessRatePct, id, name)
		ch <- prometheus.MustNewConstMetric(e.responseTime, prometheus.GaugeValue, m.ResponseTimeMs, id, name)
		if m.MemoryMB != nil {
			ch <- prometheus.MustNewConstMetric(e.memory, prometheus.GaugeValue, *m.MemoryMB, id, name)
		}
		if m.CPUPct != nil {
			ch <- prometheus.MustNewConstMetric(e.cpu, prometheus.GaugeValue, *m.CPUPct, id, name)
		}
	}
}
