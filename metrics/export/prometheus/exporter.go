package prometheus

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planlane/authcore"
)

const namespace = "authcore"

// metricsSource is the slice of authcore.Engine the collector reads.
type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// Collector renders engine counters on every scrape. It holds no state of its
// own; values come straight from the engine's atomic counters.
type Collector struct {
	source       metricsSource
	counterDescs map[authcore.MetricID]*prometheus.Desc
	latencyDesc  *prometheus.Desc
	droppedDesc  *prometheus.Desc
}

// NewCollector creates a collector reading from the given engine.
func NewCollector(engine *authcore.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource creates a collector from a custom source, which test
// doubles and aggregating wrappers implement.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:       source,
		counterDescs: make(map[authcore.MetricID]*prometheus.Desc),
		latencyDesc: prometheus.NewDesc(
			namespace+"_validate_latency_seconds",
			"Access token validation latency.",
			nil, nil,
		),
		droppedDesc: prometheus.NewDesc(
			namespace+"_audit_dropped_total",
			"Audit events dropped due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for id, name := range counterNames() {
		c.counterDescs[id] = prometheus.NewDesc(
			namespace+"_"+name+"_total",
			"Engine counter "+name+".",
			nil, nil,
		)
	}
	return c
}

func counterNames() map[authcore.MetricID]string {
	names := make(map[authcore.MetricID]string)
	for id := authcore.MetricID(0); ; id++ {
		name := authcore.MetricName(id)
		if name == "unknown" {
			break
		}
		if id == authcore.MetricValidateLatency {
			continue
		}
		names[id] = name
	}
	return names
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.counterDescs {
		ch <- desc
	}
	ch <- c.latencyDesc
	ch <- c.droppedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}
	snap := c.source.MetricsSnapshot()

	for id, desc := range c.counterDescs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snap.Counters[id]))
	}
	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(c.source.AuditDropped()))

	if raw, ok := snap.Histograms[authcore.MetricValidateLatency]; ok {
		ch <- constHistogram(c.latencyDesc, raw)
	}
}

// constHistogram converts the engine's per-bucket millisecond counts into the
// cumulative seconds-keyed form prometheus expects. The engine does not track
// a latency sum, so the histogram reports none.
func constHistogram(desc *prometheus.Desc, raw []uint64) prometheus.Metric {
	bounds := authcore.HistogramBounds()
	buckets := make(map[float64]uint64, len(bounds))
	var count uint64
	for i, ms := range bounds {
		if i < len(raw) {
			count += raw[i]
		}
		buckets[float64(ms)/1000] = count
	}
	// The final overflow bucket only feeds the total count.
	if len(raw) > len(bounds) {
		count += raw[len(bounds)]
	}
	return prometheus.MustNewConstHistogram(desc, count, 0, buckets)
}

// Handler serves the engine's metrics from a private registry in Prometheus
// exposition format.
func Handler(engine *authcore.Engine) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(engine))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// MetricFullName returns the exposition name of an engine counter, which
// dashboards reference.
func MetricFullName(id authcore.MetricID) string {
	name := authcore.MetricName(id)
	if name == "unknown" {
		return ""
	}
	if id == authcore.MetricValidateLatency {
		return namespace + "_validate_latency_seconds"
	}
	return namespace + "_" + strings.TrimSuffix(name, "_total") + "_total"
}
