package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// counterValue sums a counter family's samples whose labels include want.
func counterValue(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestGateAndBatchCounters(t *testing.T) {
	m := New("test")
	m.GateDecision(true)
	m.GateDecision(false)
	m.GateDecision(false)
	m.ScoreBatch(4, 1)

	if got := counterValue(t, m, "test_gate_decisions_total", map[string]string{"outcome": "denied"}); got != 2 {
		t.Errorf("denied = %v, want 2", got)
	}
	if got := counterValue(t, m, "test_scores_recomputed_total", map[string]string{"result": "ok"}); got != 4 {
		t.Errorf("ok = %v, want 4", got)
	}
	if got := counterValue(t, m, "test_scores_recomputed_total", map[string]string{"result": "failed"}); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}

func TestCacheAndHTTP(t *testing.T) {
	m := New("")
	m.CacheLookup("recent", "hit")
	m.CacheLookup("recent", "miss")
	m.RecordHTTPRequest("GET", "/api/v1/posts", "200", 15*time.Millisecond)
	m.RateLimited("like")

	if got := counterValue(t, m, "vizion_cache_lookups_total", map[string]string{"feed": "recent"}); got != 2 {
		t.Errorf("cache lookups = %v, want 2", got)
	}
	if got := counterValue(t, m, "vizion_http_requests_total", map[string]string{"route": "/api/v1/posts"}); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestHandlerExposes(t *testing.T) {
	m := New("test")
	m.GateDecision(true)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "test_gate_decisions_total") {
		t.Errorf("exposition missing gate counter:\n%s", body)
	}
}
