package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/marmos91/staticd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *serverMetrics {
	t.Helper()
	metrics.Reset()
	t.Cleanup(metrics.Reset)
	metrics.InitRegistry()

	m := metrics.NewServerMetrics()
	require.NotNil(t, m, "constructor should be registered by init")
	sm, ok := m.(*serverMetrics)
	require.True(t, ok)
	return sm
}

func TestNewServerMetrics_NilWhenDisabled(t *testing.T) {
	metrics.Reset()
	assert.Nil(t, NewServerMetrics())
}

func TestNewServerMetrics_SameInstancePerRegistry(t *testing.T) {
	m := newTestMetrics(t)
	assert.Same(t, m, NewServerMetrics())
}

func TestConnectionCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordAccepted()
	m.RecordAccepted()
	m.RecordRejected()
	m.SetActiveConnections(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.accepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.activeConnections))
}

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest(metrics.StatusOK, 2*time.Millisecond)
	m.RecordRequest(metrics.StatusOK, time.Millisecond)
	m.RecordRequest(metrics.StatusNotFound, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("404")))
}

func TestPoolGauges(t *testing.T) {
	m := newTestMetrics(t)

	m.SetQueueDepth(7)
	m.SetBusyWorkers(3)
	m.RecordWorkerPanic()

	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.busyWorkers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workerPanics))
}

func TestCacheMetrics(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.RecordCacheEviction()
	m.SetCacheEnabled(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheEvictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheEnabled))

	m.SetCacheEnabled(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.cacheEnabled))
}

func TestObserveOriginRead(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveOriginRead("dir", 512, time.Millisecond, nil)
	m.ObserveOriginRead("dir", 0, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.originReads.WithLabelValues("dir", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.originReads.WithLabelValues("dir", "error")))
}
