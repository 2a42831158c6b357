package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsQueueActivity(t *testing.T) {
	c := NewCollector()

	c.QueueDepth(3, 1, 2)
	c.DrainFinished(2, 1, 0, 150*time.Millisecond)
	c.DrainFinished(1, 0, 1, 50*time.Millisecond)
	c.SetOnline(true)
	c.Fallback("fetch_all")
	c.Fallback("fetch_all")

	assert.Equal(t, 3.0, testutil.ToFloat64(c.QueuePending))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.QueueFailing))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.QueueAbandoned))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Drains))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Replayed.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Replayed.WithLabelValues("abandoned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RemoteOnline))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Fallbacks.WithLabelValues("fetch_all")))

	c.SetOnline(false)
	assert.Zero(t, testutil.ToFloat64(c.RemoteOnline))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()
	a.QueueDepth(5, 0, 0)
	assert.Zero(t, testutil.ToFloat64(b.QueuePending))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.QueueDepth(4, 0, 0)

	srv := httptest.NewServer(c.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tripsync_queue_pending 4")
}
