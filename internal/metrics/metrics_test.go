package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetrics_AllMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	m.SetClients(3)
	m.SetGeometry(80, 24)
	m.AddBytesToProgram(10)
	m.AddBytesToClients(10)
	m.Shutdown(context.Background())
	if err := m.Serve("127.0.0.1:0"); err != nil {
		t.Errorf("Serve on nil Metrics returned %v, want nil", err)
	}
}

func TestServe_ExposesRegisteredInstruments(t *testing.T) {
	m := New()
	m.SetClients(2)
	m.SetGeometry(100, 40)
	m.AddBytesToProgram(5)
	m.AddBytesToClients(7)

	if err := m.Serve("127.0.0.1:0"); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Shutdown(ctx)
	}()

	// Serve binds :0, so poke the registry directly via its own handler
	// instead of guessing the ephemeral port; that's the behavior under
	// test, not a network round trip.
	body := scrapeDirect(t, m)
	for _, want := range []string{
		"termbroker_attached_clients 2",
		"termbroker_geometry_cols 100",
		"termbroker_geometry_rows 40",
		"termbroker_bytes_to_program_total 5",
		"termbroker_bytes_to_clients_total 7",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\nfull output:\n%s", want, body)
		}
	}
}

func scrapeDirect(t *testing.T, m *Metrics) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	rec := httptest.NewRecorder()
	m.srv.Handler.ServeHTTP(rec, req)
	return rec.Body.String()
}
