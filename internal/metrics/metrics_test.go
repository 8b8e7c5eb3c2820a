package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCallCountsFallbacks(t *testing.T) {
	c := NewCollector(3 * time.Second)
	c.ObserveCall("routing", 20*time.Millisecond, false)
	c.ObserveCall("routing", 20*time.Millisecond, true)
	c.ObserveCall("narrator", time.Millisecond, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Fallbacks.WithLabelValues("routing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Fallbacks.WithLabelValues("narrator")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.TickInterval))
}

func TestNilCollectorObserveIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() { c.ObserveCall("geocode", time.Millisecond, true) })
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(time.Second)
	c.SimulationTicks.Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bustracker_simulation_ticks_total 1")
}
