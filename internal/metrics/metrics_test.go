package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSends(t *testing.T) {
	m := New()
	m.RecordSends(3, 1)
	m.RecordSends(2, 0)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("failed")))

	var nilMetrics *Metrics
	nilMetrics.RecordSends(1, 1)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.AlertsFiredTotal.WithLabelValues("2_days_before").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `upgradewatcher_alerts_fired_total{threshold="2_days_before"} 1`))
}
