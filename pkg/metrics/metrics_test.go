package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil || m.registry == nil {
		t.Fatal("NewMetrics returned incomplete metrics")
	}

	m.TurnsTotal.WithLabelValues("botframework", "done").Inc()
	m.TurnsTotal.WithLabelValues("botframework", "done").Inc()
	m.UpstreamFailuresTotal.WithLabelValues("interact").Inc()
	m.ActiveTurns.Inc()

	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("botframework", "done")); got != 2 {
		t.Fatalf("turns done = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.UpstreamFailuresTotal.WithLabelValues("interact")); got != 1 {
		t.Fatalf("upstream failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveTurns); got != 1 {
		t.Fatalf("active turns = %v, want 1", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ChannelSendsTotal.WithLabelValues("telegram", "text", "ok").Inc()
	m.MessagesNormalizedTotal.WithLabelValues("text").Add(3)
	m.TurnDuration.WithLabelValues("telegram").Observe(0.25)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body := w.Body.String()
	for _, name := range []string{
		"flowbridge_channel_sends_total",
		"flowbridge_messages_normalized_total",
		"flowbridge_turn_duration_seconds",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	first := NewMetrics()
	second := NewMetrics()

	first.TurnsTotal.WithLabelValues("console", "failed").Inc()
	if got := testutil.ToFloat64(second.TurnsTotal.WithLabelValues("console", "failed")); got != 0 {
		t.Fatalf("second registry saw %v turns", got)
	}
}
