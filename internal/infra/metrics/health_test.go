package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"forecast_bot/internal/infra/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) PingContext(_ context.Context) error { return f.err }

func newTestChecker(p metrics.Pinger) (*metrics.Checker, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return metrics.NewChecker(p, logrus.NewEntry(logger), reg), reg
}

func TestLiveness_AlwaysUp(t *testing.T) {
	c, _ := newTestChecker(&fakePinger{err: errors.New("db down")})

	result := c.Liveness(context.Background())
	assert.Equal(t, "up", result.Status)
	assert.Nil(t, result.Checks)
}

func TestReadiness_PostgresUp(t *testing.T) {
	c, reg := newTestChecker(&fakePinger{})

	result := c.Readiness(context.Background())
	assert.Equal(t, "up", result.Status)
	assert.Equal(t, "up", result.Checks["postgres"].Status)

	count, err := testutil.GatherAndCount(reg, "forecast_bot_health_check_up")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReadiness_PostgresDown(t *testing.T) {
	c, _ := newTestChecker(&fakePinger{err: errors.New("connection refused")})

	result := c.Readiness(context.Background())
	assert.Equal(t, "down", result.Status)
	assert.Equal(t, "down", result.Checks["postgres"].Status)
	assert.NotEmpty(t, result.Checks["postgres"].Error)
}

func TestServer_ReadyzReportsUnavailable(t *testing.T) {
	c, _ := newTestChecker(&fakePinger{err: errors.New("connection refused")})
	srv := metrics.NewServer(":0", c)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
