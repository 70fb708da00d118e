package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPMiddleware_RecordsRequests(t *testing.T) {
	reg := NewRegistry()
	handler := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/backtest", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	v, ok := gatherValue(t, reg, "http_requests_total",
		map[string]string{"method": "POST", "path": "/api/backtest", "status": "2xx"})
	if !ok || v != 1 {
		t.Errorf("http_requests_total = %v, %v; want 1", v, ok)
	}
}

func TestHTTPMiddleware_DefaultsToOK(t *testing.T) {
	reg := NewRegistry()
	handler := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // No explicit WriteHeader
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	_, ok := gatherValue(t, reg, "http_requests_total",
		map[string]string{"status": "2xx"})
	if !ok {
		t.Error("implicit 200 not recorded as 2xx")
	}
}

func TestHTTPMiddleware_LabelsByRoutePattern(t *testing.T) {
	reg := NewRegistry()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {})
	handler := HTTPMiddleware(reg)(mux)

	// Two different job IDs, one metric series.
	for _, path := range []string{"/api/jobs/abc", "/api/jobs/def"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	v, ok := gatherValue(t, reg, "http_requests_total",
		map[string]string{"method": "GET", "path": "/api/jobs/{id}", "status": "2xx"})
	if !ok || v != 2 {
		t.Errorf("http_requests_total{path=/api/jobs/{id}} = %v, %v; want 2", v, ok)
	}
}

func TestHTTPMiddleware_InFlightReturnsToZero(t *testing.T) {
	reg := NewRegistry()
	handler := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	v, ok := gatherValue(t, reg, "http_requests_in_flight", nil)
	if !ok || v != 0 {
		t.Errorf("in-flight gauge = %v, %v; want 0 after completion", v, ok)
	}
}
