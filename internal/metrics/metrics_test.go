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

func TestCounters(t *testing.T) {
	m := New()
	m.SignatureGenerated("Permit")
	m.SignatureGenerated("Permit")
	m.Submitted("permitDeposit", OutcomeConfirmed)
	m.EventObserved("listed")
	m.ReceiptWait(2 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.signatures.WithLabelValues("Permit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("permitDeposit", OutcomeConfirmed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.submissions.WithLabelValues("permitDeposit", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("listed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SignatureGenerated("Permit")
		m.Submitted("permit", OutcomeFailed)
		m.EventObserved("sold")
		m.ReceiptWait(time.Second)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.EventObserved("cancelled")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tokenbank_market_events_observed_total{kind="cancelled"} 1`)
}
