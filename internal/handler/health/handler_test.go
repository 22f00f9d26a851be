package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(checks map[string]Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "records_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	r := gin.New()
	NewHandler(reg, checks).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness(t *testing.T) {
	w := get(newRouter(nil), "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"UP"`)
}

func TestReadiness(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		checks map[string]Pinger
		code   int
		status string
	}{
		{"all up", map[string]Pinger{"database": up, "redis": up}, http.StatusOK, "UP"},
		{"one down", map[string]Pinger{"database": up, "redis": down}, http.StatusServiceUnavailable, "DOWN"},
		{"no checks", nil, http.StatusOK, "UP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(newRouter(tt.checks), "/api/v1/health/ready")
			require.Equal(t, tt.code, w.Code)

			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestReadinessReportsFailingCheck(t *testing.T) {
	w := get(newRouter(map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return errors.New("timeout") }),
	}), "/api/v1/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"DOWN"`)
	assert.NotContains(t, w.Body.String(), "timeout")
}

func TestMetrics(t *testing.T) {
	w := get(newRouter(nil), "/api/v1/health/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "records_test_total 1"))
}
