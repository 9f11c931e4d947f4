package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsToleratesEveryCall(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetPoolActiveWorkers("server", 3)
		m.SetPoolQueueDepth("server", 1)
		m.IncServerConnsOpen()
		m.DecServerConnsOpen()
		m.ObserveServerRequest("2xx")
		m.IncDNSCacheHit()
		m.IncDNSCacheMiss()
		m.ObserveFetchLatency("ok", 0.01)
		_ = m.Registry()
	})
}

func TestMetricsRecordsCounts(t *testing.T) {
	m := New()
	m.IncServerConnsOpen()
	m.IncServerConnsOpen()
	m.DecServerConnsOpen()
	m.ObserveServerRequest("2xx")
	m.ObserveServerRequest("2xx")
	m.ObserveServerRequest("4xx")
	m.IncDNSCacheHit()

	require.NotNil(t, m.Registry())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.serverConnsOpen))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.serverRequestsTotal.WithLabelValues("2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.serverRequestsTotal.WithLabelValues("4xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dnsCacheHits))
}
