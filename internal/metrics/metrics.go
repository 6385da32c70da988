package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flightfinder"

// Metrics holds the Prometheus collectors for the flight search pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ScrapeAttempts  *prometheus.CounterVec
	Searches        *prometheus.CounterVec
	SearchDuration  prometheus.Histogram
	RankerFallbacks prometheus.Counter
	GeocodeRequests *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScrapeAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_attempts_total",
			Help:      "Flight provider queries by outcome",
		}, []string{"status"}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Completed flight searches by response status",
		}, []string{"status"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Wall time of one flight search",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}),
		RankerFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranker_fallbacks_total",
			Help:      "Rankings that fell back to provider order",
		}),
		GeocodeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoder lookups by result",
		}, []string{"result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "code"}),
	}
}

func (m *Metrics) ObserveAttempt(status string) {
	if m == nil {
		return
	}
	m.ScrapeAttempts.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveSearch(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(status).Inc()
	m.SearchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RankerFallback() {
	if m == nil {
		return
	}
	m.RankerFallbacks.Inc()
}

// ObserveGeocode records a geocoder lookup; result is one of hit, miss, cached or error.
func (m *Metrics) ObserveGeocode(result string) {
	if m == nil {
		return
	}
	m.GeocodeRequests.WithLabelValues(result).Inc()
}

// ObserveRequest records a served HTTP request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
