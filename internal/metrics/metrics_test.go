package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestServerExposesMetrics(t *testing.T) {
	SessionTransitions.WithLabelValues("start").Inc()

	srv := NewServer("127.0.0.1:0", zerolog.Nop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "apextrack_session_transitions_total") {
		t.Error("Expected session transition counter in exposition")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("Expected healthy response, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestLiveSessionsGauge(t *testing.T) {
	LiveSessions.Set(3)
	LiveSessions.Dec()

	if got := testutil.ToFloat64(LiveSessions); got != 2 {
		t.Errorf("Expected 2 live sessions, got %v", got)
	}
}
