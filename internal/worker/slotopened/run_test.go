package slotopened

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
)

func TestMetricsServerExposesDispatchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	m.ObserveDispatch("ok", 0.02)
	m.ObserveCandidates("weighted", 3)

	srv := newMetricsServer("9091", reg)
	require.NotNil(t, srv)
	assert.Equal(t, ":9091", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinic_scheduling_dispatch_latency_seconds")
	assert.Contains(t, rec.Body.String(), "clinic_scheduling_candidates_returned")

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsServerDisabledWithoutPort(t *testing.T) {
	assert.Nil(t, newMetricsServer("", prometheus.NewRegistry()))
}

func TestRunRejectsMemoryQueueAndMissingDatabase(t *testing.T) {
	err := Run(context.Background(), &appconfig.Config{UseMemoryQueue: true}, nil)
	assert.ErrorContains(t, err, "USE_MEMORY_QUEUE")

	err = Run(context.Background(), &appconfig.Config{}, nil)
	assert.ErrorContains(t, err, "DATABASE_URL")

	assert.Error(t, Run(context.Background(), nil, nil))
}
