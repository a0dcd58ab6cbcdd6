package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", 200, time.Millisecond)
	m.IncRetry()
	m.IncRefresh("ok")
	m.IncLogout("refresh_failed")
	m.SetRateLimit(10, 5, time.Now())
	m.IncCacheFetch("first", "ok")
	m.IncCacheFallback()
	m.IncMutation("send_message", "committed")
	m.IncRealtimeEvent("message_new")
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("GET", 200, 10*time.Millisecond)
	m.ObserveRequest("GET", 200, 20*time.Millisecond)
	m.IncRefresh("failed")
	m.SetRateLimit(100, 42, time.Unix(1_700_000_000, 0))
	m.IncCacheFallback()

	require.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RefreshTotal.WithLabelValues("failed")))
	require.Equal(t, 42.0, testutil.ToFloat64(m.RateLimitRemaining))
	require.Equal(t, 1_700_000_000.0, testutil.ToFloat64(m.RateLimitReset))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CacheFallbackTotal))

	n, err := testutil.GatherAndCount(reg, "arcsync_requests_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
