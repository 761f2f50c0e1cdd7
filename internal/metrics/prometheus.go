// Registers:
//
//	#storeprice_feed_rows_total{source}
//	#storeprice_catalog_passes_total{trigger}
//	#storeprice_catalog_pass_seconds
//	#storeprice_catalog_items
//	#storeprice_rate_refresh_total{result}
//	#storeprice_sessions
//	#storeprice_selection_rejections_total
//	#storeprice_http_requests_total{route,code}
//	#go_* and process_* system metrics
//
// on a private registry served by Handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storeprice/logger"
)

// Registry holds the process collectors. Each Registry owns its own
// prometheus registry so several can coexist in tests.
type Registry struct {
	reg *prometheus.Registry
	log *logger.Log

	feedRows            *prometheus.CounterVec
	catalogPasses       *prometheus.CounterVec
	catalogPassSeconds  prometheus.Histogram
	catalogItems        prometheus.Gauge
	rateRefreshes       *prometheus.CounterVec
	sessions            prometheus.Gauge
	selectionRejections prometheus.Counter
	httpRequests        *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		log: logger.GetLogger(),
		feedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storeprice_feed_rows_total",
			Help: "Rows admitted into the feed per source",
		}, []string{"source"}),
		catalogPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storeprice_catalog_passes_total",
			Help: "Normalization passes per trigger",
		}, []string{"trigger"}),
		catalogPassSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storeprice_catalog_pass_seconds",
			Help:    "Duration of normalization passes",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		catalogItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storeprice_catalog_items",
			Help: "Items in the current catalog",
		}),
		rateRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storeprice_rate_refresh_total",
			Help: "Currency rate refresh attempts by result",
		}, []string{"result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storeprice_sessions",
			Help: "Open browsing sessions",
		}),
		selectionRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storeprice_selection_rejections_total",
			Help: "Selections refused because the comparison is full",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storeprice_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}

	r.reg.MustRegister(
		r.feedRows,
		r.catalogPasses,
		r.catalogPassSeconds,
		r.catalogItems,
		r.rateRefreshes,
		r.sessions,
		r.selectionRejections,
		r.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) ObserveFeedBatch(source string, rows int) {
	r.feedRows.WithLabelValues(source).Add(float64(rows))
	logger.RecordFeedBatch(source, rows)
}

func (r *Registry) ObserveCatalogPass(trigger string, items int, d time.Duration) {
	r.catalogPasses.WithLabelValues(trigger).Inc()
	r.catalogPassSeconds.Observe(d.Seconds())
	r.catalogItems.Set(float64(items))
	logger.RecordCatalogPass(items)
	EmitMetric(r.log, "catalog_syncer", "catalog_items", items, "gauge", logger.Fields{"trigger": trigger})
}

func (r *Registry) ObserveRateRefresh(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.rateRefreshes.WithLabelValues(result).Inc()
	EmitMetric(r.log, "rate_refresher", "rate_refresh", 1, "counter", logger.Fields{"result": result})
}

func (r *Registry) SetSessions(n int) {
	r.sessions.Set(float64(n))
}

func (r *Registry) ObserveSelectionRejected() {
	r.selectionRejections.Inc()
}

func (r *Registry) ObserveHTTPRequest(route string, code int) {
	r.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
