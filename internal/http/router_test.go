package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpH "github.com/Ladvien/self-sensored-sub003/internal/http/handlers"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, r nethttp.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(nethttp.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndRequestIDs(t *testing.T) {
	r := NewRouter(RouterConfig{Log: logger.Nop(), HealthHandler: httpH.NewHealthHandler(nil)})

	rec := serve(t, r, "/healthz", map[string]string{"X-Request-Id": "req-1"})
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestReadyzReportsFailingCheck(t *testing.T) {
	down := errors.New("connection refused")
	h := httpH.NewHealthHandler(map[string]httpH.Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return down },
	})
	r := NewRouter(RouterConfig{Log: logger.Nop(), HealthHandler: h})

	rec := serve(t, r, "/readyz", nil)
	require.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)

	var body struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestReadyzAllHealthy(t *testing.T) {
	h := httpH.NewHealthHandler(map[string]httpH.Check{
		"postgres": func(context.Context) error { return nil },
	})
	r := NewRouter(RouterConfig{Log: logger.Nop(), HealthHandler: h})
	assert.Equal(t, nethttp.StatusOK, serve(t, r, "/readyz", nil).Code)
}

func TestMetricsRouteMountsHandler(t *testing.T) {
	metrics := nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		_, _ = w.Write([]byte("healthingest_up 1\n"))
	})
	r := NewRouter(RouterConfig{Log: logger.Nop(), Metrics: metrics})

	rec := serve(t, r, "/metrics", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthingest_up 1")
	assert.Equal(t, nethttp.StatusNotFound, serve(t, r, "/readyz", nil).Code)
}

func TestUnknownRouteReturnsErrorBody(t *testing.T) {
	r := NewRouter(RouterConfig{Log: logger.Nop()})

	rec := serve(t, r, "/jobs", nil)
	require.Equal(t, nethttp.StatusNotFound, rec.Code)
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Code)
	assert.Equal(t, "route not found", body.Error)
}
