package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/seantiz/showcase/internal/engine"
)

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Engine != engine.DefaultProcessEngineName {
		t.Errorf("engine = %q, want %q", body.Engine, engine.DefaultProcessEngineName)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Make a request to generate metrics.
	http.Get(ts.URL + "/healthz")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") && !strings.Contains(contentType, "text/openmetrics") {
		t.Errorf("Content-Type = %q, expected prometheus format", contentType)
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	if !strings.Contains(body, "showcase_http_requests_total") {
		t.Error("metrics output missing showcase_http_requests_total")
	}
	if !strings.Contains(body, "showcase_http_request_duration_seconds") {
		t.Error("metrics output missing showcase_http_request_duration_seconds")
	}
}

func TestMetricsLabelWebAppRequestsByArea(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path   string
		label  string
		status int
	}{
		{"/api/engine/engine", "/api/engine/*", http.StatusOK},
		{"/api/cockpit/engine/stats", "/api/cockpit/*", http.StatusUnauthorized},
		{"/api/admin/engine/user", "/api/admin/*", http.StatusUnauthorized},
		{"/app/cockpit/engine/", "/app/*", http.StatusOK},
		{"/healthz", "/healthz", http.StatusOK},
		{"/nope", unmatched, http.StatusNotFound},
	}
	for _, tt := range tests {
		counter := httpRequestsTotal.WithLabelValues(http.MethodGet, tt.label, strconv.Itoa(tt.status))
		before := testutil.ToFloat64(counter)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.status)
			continue
		}
		if got := testutil.ToFloat64(counter) - before; got != 1 {
			t.Errorf("GET %s: requests with path label %q grew by %v, want 1", tt.path, tt.label, got)
		}
	}
}
