package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerReadyWithDependencies(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewChecker(nil)
	c.Register("postgres", Postgres(db))
	c.Register("redis", Redis(client))

	rec := httptest.NewRecorder()
	c.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, report.Checks)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckerDegraded(t *testing.T) {
	c := NewChecker(nil)
	c.Register("postgres", func(context.Context) error { return errors.New("connection refused") })
	c.Register("redis", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	c.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "error: connection refused", report.Checks["postgres"])
	assert.Equal(t, "ok", report.Checks["redis"])
}

func TestNilDependenciesAreSkipped(t *testing.T) {
	c := NewChecker(nil)
	c.Register("postgres", Postgres(nil))
	c.Register("redis", Redis(nil))

	report := c.Run(context.Background())
	assert.Equal(t, "ok", report.Status)
	assert.Empty(t, report.Checks)
}

func TestLive(t *testing.T) {
	c := NewChecker(nil)
	c.Register("broken", func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	c.Live(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
