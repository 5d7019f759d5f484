package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAction(t *testing.T) {
	m := New()

	m.ObserveAction("login", OutcomeSuccess, 10*time.Millisecond)
	m.ObserveAction("login", OutcomeSuccess, 20*time.Millisecond)
	m.ObserveAction("login", OutcomeFailure, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.actions.WithLabelValues("login", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("login", OutcomeFailure)))
}

func TestAddKeysGenerated(t *testing.T) {
	m := New()

	m.AddKeysGenerated(5)
	m.AddKeysGenerated(0)
	m.AddKeysGenerated(-3)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.keysGenerated))
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAction("login", OutcomeSuccess, time.Millisecond)
		m.AddKeysGenerated(1)
		m.IncRateLimited()
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.IncRateLimited()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "keygate_rate_limited_requests_total 1")
}
