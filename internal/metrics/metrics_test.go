package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/neexbeast/flightfinder/internal/metrics"
)

func TestMetrics_Counters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveAttempt("success")
	m.ObserveAttempt("success")
	m.ObserveAttempt("error")
	m.ObserveSearch("no_results", 2*time.Second)
	m.RankerFallback()
	m.ObserveGeocode("cached")
	m.ObserveRequest("GET", "/api/v1/searches/{id}", 404)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScrapeAttempts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapeAttempts.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Searches.WithLabelValues("no_results")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankerFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeocodeRequests.WithLabelValues("cached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/v1/searches/{id}", "404")))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.New(prometheus.NewRegistry())
		metrics.New(prometheus.NewRegistry())
	})
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt("success")
		m.ObserveSearch("success", time.Second)
		m.RankerFallback()
		m.ObserveGeocode("hit")
		m.ObserveRequest("POST", "/api/v1/flights/search", 200)
	})
}
