package metric

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}

	r.LogonsRejected.WithLabelValues(ReasonNoMatch).Inc()
	r.LogonsRejected.WithLabelValues(ReasonNoMatch).Inc()
	r.SessionsActive.Set(3)

	if got := testutil.ToFloat64(r.LogonsRejected.WithLabelValues(ReasonNoMatch)); got != 2 {
		t.Errorf("logons_rejected_total{reason=no_match} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.SessionsActive); got != 3 {
		t.Errorf("sessions_active = %v, want 3", got)
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ConnectionsAccepted.WithLabelValues("0.0.0.0:9876").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(string(body), `exsim_acceptor_connections_accepted_total{address="0.0.0.0:9876"} 1`) {
		t.Errorf("metrics output missing connection counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output should include Go runtime metrics")
	}
}

func TestCollector(t *testing.T) {
	values := map[string]float64{"listeners": 2, "sessions": 5}
	c := NewCollector("engine",
		map[string]string{
			"listeners": "Bound listeners.",
			"sessions":  "Active sessions.",
			"missing":   "Never reported.",
		},
		prometheus.Labels{"id": "test"},
		func() map[string]float64 { return values },
	)

	if got := testutil.CollectAndCount(c); got != 2 {
		t.Errorf("CollectAndCount() = %d, want 2", got)
	}

	expected := `
# HELP exsim_engine_sessions Active sessions.
# TYPE exsim_engine_sessions gauge
exsim_engine_sessions{id="test"} 5
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "exsim_engine_sessions"); err != nil {
		t.Error(err)
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Errorf("Register() error = %v", err)
	}
}
