package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()
	c.BidAccepted()
	c.BidAccepted()
	c.BidRejected("bid_too_low")
	c.Sale(40)
	c.Sale(15)
	c.EventDropped("outbox")
	c.EngineOpened()
	c.EngineOpened()
	c.EngineClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.bidsAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.bidsRejected.WithLabelValues("bid_too_low")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sales))
	assert.Equal(t, 55.0, testutil.ToFloat64(c.salePoints))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsDropped.WithLabelValues("outbox")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeEngines))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.BidAccepted()
	c.BidRejected("paused")
	c.Sale(1)
	c.EventDropped("subscriber")
	c.EngineOpened()
	c.EngineClosed()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.Sale(10)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auctionarena_sales_total 1")
}
