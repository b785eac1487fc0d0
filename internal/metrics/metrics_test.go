package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerServesRegisteredCollectors(t *testing.T) {
	m := New()
	m.RequestsTotal.WithLabelValues("/v1/broadcast/t1/tr1", "200").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !containsMetric(rec.Body.String(), "hyphal_requests_total") {
		t.Errorf("expected scrape output to contain hyphal_requests_total, got:\n%s", rec.Body.String())
	}
}

func TestObserveJobRunRecordsOutcomeAndRows(t *testing.T) {
	m := New()
	m.ObserveJobRun("decay", nil, 5)
	m.ObserveJobRun("decay", errors.New("boom"), 0)

	if got := testutil.ToFloat64(m.JobRuns.WithLabelValues("decay", "ok")); got != 1 {
		t.Errorf("expected 1 ok run, got %f", got)
	}
	if got := testutil.ToFloat64(m.JobRuns.WithLabelValues("decay", "error")); got != 1 {
		t.Errorf("expected 1 error run, got %f", got)
	}
	if got := testutil.ToFloat64(m.JobRowsAffected.WithLabelValues("decay")); got != 5 {
		t.Errorf("expected 5 rows affected, got %f", got)
	}
}

func containsMetric(body, name string) bool {
	return len(body) > 0 && (indexOf(body, name) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
