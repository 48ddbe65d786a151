package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chainsign/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverCounters(t *testing.T) {
	m := New()
	m.DeviceRegistered(domain.AlgorithmRSA)
	m.TransactionCommitted(domain.AlgorithmRSA, 5*time.Millisecond)
	m.TransactionCommitted(domain.AlgorithmRSA, 5*time.Millisecond)
	m.TransactionFailed(domain.AlgorithmECC, "device_inactive")
	m.TransactionFailed("", "not_found")
	m.LockWaited(time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.devices.WithLabelValues("RSA")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transactions.WithLabelValues("RSA", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("ECC", "device_inactive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("unknown", "not_found")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/api/v1/devices/:device_id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices/abc", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/devices/:device_id", "204")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "chainsign_http_requests_total"))
}
