// Package metrics exposes the Prometheus registry for the resolver and
// route manager.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds the process-wide metrics.
type Registry struct {
	// DNS metrics
	DNSQueries     *prometheus.CounterVec
	DNSCacheHits   prometheus.Counter
	DNSCacheMisses prometheus.Counter
	DNSUpstreamErr *prometheus.CounterVec
	DNSQueryTime   *prometheus.HistogramVec

	// Routing metrics
	RouteActions   *prometheus.CounterVec
	RouteInstalled prometheus.Gauge
	RouteErrors    *prometheus.CounterVec

	// System metrics
	Uptime       prometheus.Gauge
	ConfigReload *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.DNSQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leshy_dns_queries_total",
		Help: "Total DNS queries handled, by query type and zone",
	}, []string{"qtype", "zone"})

	r.DNSCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leshy_dns_cache_hits_total",
		Help: "Total DNS responses served from cache",
	})

	r.DNSCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leshy_dns_cache_misses_total",
		Help: "Total DNS queries that missed the cache",
	})

	r.DNSUpstreamErr = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leshy_dns_upstream_errors_total",
		Help: "Total upstream resolution failures, by protocol",
	}, []string{"protocol"})

	r.DNSQueryTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leshy_dns_query_duration_seconds",
		Help:    "End-to-end query handling latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"zone"})

	r.RouteActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leshy_route_actions_total",
		Help: "Total route table mutations, by action and zone",
	}, []string{"action", "zone"})

	r.RouteInstalled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leshy_routes_installed",
		Help: "Current number of installed routes across all zones",
	})

	r.RouteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leshy_route_errors_total",
		Help: "Total route installer failures, by zone",
	}, []string{"zone"})

	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leshy_uptime_seconds",
		Help: "Process uptime in seconds",
	})

	r.ConfigReload = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leshy_config_reloads_total",
		Help: "Total configuration reloads, by outcome",
	}, []string{"status"})

	return r
}

// Handler returns an http.Handler serving the registered metrics in the
// Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordQuery records a completed DNS query.
func (r *Registry) RecordQuery(qtype, zone string, cacheHit bool, d float64) {
	r.DNSQueries.WithLabelValues(qtype, zone).Inc()
	if cacheHit {
		r.DNSCacheHits.Inc()
	} else {
		r.DNSCacheMisses.Inc()
	}
	r.DNSQueryTime.WithLabelValues(zone).Observe(d)
}

// RecordRouteAction records a route table mutation.
func (r *Registry) RecordRouteAction(action, zone string) {
	r.RouteActions.WithLabelValues(action, zone).Inc()
}
