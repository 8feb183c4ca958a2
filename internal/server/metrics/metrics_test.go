package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveRequest("GET", 200, 10*time.Millisecond)
	m.ObserveRequest("GET", 200, 20*time.Millisecond)
	m.ObserveRequest("POST", 429, time.Millisecond)
	m.Rejected(StageRateLimit, "rate_limit")
	m.Login("failure")
	m.OnWrite("audit", nil)
	m.OnWrite("audit", errors.New("disk full"))
	m.OnDrop("audit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues(StageRateLimit, "rate_limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logWrites.WithLabelValues("audit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logWrites.WithLabelValues("audit", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logDrops.WithLabelValues("audit")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Rejected(StageThreat, "sql_injection")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `authgate_gate_rejections_total{reason="sql_injection",stage="threat"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
