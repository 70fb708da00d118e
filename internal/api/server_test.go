package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/quantbt/internal/api/response"
	"github.com/newthinker/quantbt/internal/archive"
	"github.com/newthinker/quantbt/internal/backtest"
	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/metrics"
)

// stubProvider serves a fixed rising series for any symbol.
type stubProvider struct {
	err error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error) {
	if p.err != nil {
		return core.PriceSeries{}, p.err
	}
	closes := []float64{100, 110, 105}
	bars := make([]core.Bar, len(closes))
	for i, c := range closes {
		bars[i] = core.Bar{
			Symbol: symbol, Time: start.AddDate(0, 0, i),
			Open: c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	return core.PriceSeries{Symbol: symbol, Bars: bars}, nil
}

func newTestServer(t *testing.T, provider *stubProvider) *Server {
	t.Helper()

	engine, err := backtest.New(backtest.DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	fs, err := archive.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewServer(Config{Host: "127.0.0.1", Port: 0},
		engine, provider, archive.NewResults(fs, nil), metrics.NewRegistry(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func dataOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp response.SuccessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want object", resp.Data)
	}
	return data
}

// waitForJob polls until the job leaves pending/running or the deadline hits.
func waitForJob(t *testing.T, s *Server, jobID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := do(t, s, http.MethodGet, "/api/jobs/"+jobID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("job status = %d: %s", rec.Code, rec.Body.String())
		}
		data := dataOf(t, rec)
		switch data["status"] {
		case "complete", "failed":
			return data
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return nil
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	rec := do(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if dataOf(t, rec)["status"] != "ok" {
		t.Error("health payload missing ok status")
	}
}

func TestServer_Strategies(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	rec := do(t, s, http.MethodGet, "/api/strategies", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	list, ok := dataOf(t, rec)["strategies"].([]any)
	if !ok || len(list) == 0 {
		t.Error("expected a non-empty strategy list")
	}
}

func TestServer_BacktestLifecycle(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	rec := do(t, s, http.MethodPost, "/api/backtest", `{
		"symbols": ["SPY"],
		"strategy": "buy_hold",
		"start": "2024-01-02",
		"end": "2024-01-04"
	}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	jobID, _ := dataOf(t, rec)["job_id"].(string)
	if jobID == "" {
		t.Fatal("no job_id in response")
	}

	data := waitForJob(t, s, jobID)
	if data["status"] != "complete" {
		t.Fatalf("job ended %v: %v", data["status"], data["error"])
	}

	result, ok := data["result"].(map[string]any)
	if !ok {
		t.Fatal("completed job carries no result")
	}
	if result["final_value"].(float64) != 105000 {
		t.Errorf("final_value = %v, want 105000", result["final_value"])
	}

	// The run is archived and retrievable.
	runID, _ := result["run_id"].(string)
	rec = do(t, s, http.MethodGet, "/api/runs/"+runID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("archived run fetch = %d, want 200", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/runs", "")
	runs, _ := dataOf(t, rec)["runs"].([]any)
	if len(runs) != 1 {
		t.Errorf("archive lists %d runs, want 1", len(runs))
	}
}

func TestServer_BacktestValidation(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	tests := []struct {
		name string
		body string
	}{
		{"missing strategy", `{"symbols":["SPY"],"start":"2024-01-02","end":"2024-01-04"}`},
		{"missing symbols", `{"strategy":"buy_hold","start":"2024-01-02","end":"2024-01-04"}`},
		{"bad date", `{"symbols":["SPY"],"strategy":"buy_hold","start":"nope","end":"2024-01-04"}`},
		{"reversed dates", `{"symbols":["SPY"],"strategy":"buy_hold","start":"2024-02-01","end":"2024-01-04"}`},
		{"unknown strategy", `{"symbols":["SPY"],"strategy":"astrology","start":"2024-01-02","end":"2024-01-04"}`},
		{"malformed json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/backtest", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestServer_BacktestFeedFailure(t *testing.T) {
	s := newTestServer(t, &stubProvider{err: core.WrapError(core.ErrProviderFailed,
		fmt.Errorf("fetching SPY: connection refused"))})

	rec := do(t, s, http.MethodPost, "/api/backtest", `{
		"symbols": ["SPY"],
		"strategy": "buy_hold",
		"start": "2024-01-02",
		"end": "2024-01-04"
	}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	jobID, _ := dataOf(t, rec)["job_id"].(string)
	data := waitForJob(t, s, jobID)
	if data["status"] != "failed" {
		t.Errorf("job status = %v, want failed on feed error", data["status"])
	}

	// The provider's own error code and context survive to the client
	// instead of being relabeled a strategy failure.
	errInfo, _ := data["error"].(map[string]any)
	if errInfo["code"] != core.ErrProviderFailed.Code {
		t.Errorf("error code = %v, want %s", errInfo["code"], core.ErrProviderFailed.Code)
	}
	cause, _ := errInfo["cause"].(string)
	if !strings.Contains(cause, "SPY") {
		t.Errorf("error cause = %q, want instrument context", cause)
	}
}

func TestServer_Compare(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	rec := do(t, s, http.MethodPost, "/api/compare", `{
		"symbols": ["SPY"],
		"strategies": [{"name":"buy_hold"},{"name":"dca","params":{"frequency":"daily","amount":10000}}],
		"start": "2024-01-02",
		"end": "2024-01-04"
	}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	jobID, _ := dataOf(t, rec)["job_id"].(string)
	data := waitForJob(t, s, jobID)
	if data["status"] != "complete" {
		t.Fatalf("compare ended %v: %v", data["status"], data["error"])
	}

	results, ok := data["result"].(map[string]any)
	if !ok || len(results) != 2 {
		t.Errorf("compare result = %v, want 2 keyed results", data["result"])
	}
}

func TestServer_Optimize(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	rec := do(t, s, http.MethodPost, "/api/optimize", `{
		"symbols": ["SPY"],
		"strategy": "dca",
		"grid": {"amount": [5000, 10000]},
		"metric": "total_return",
		"start": "2024-01-02",
		"end": "2024-01-04"
	}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	jobID, _ := dataOf(t, rec)["job_id"].(string)
	data := waitForJob(t, s, jobID)
	if data["status"] != "complete" {
		t.Fatalf("optimize ended %v: %v", data["status"], data["error"])
	}

	result, _ := data["result"].(map[string]any)
	if result["evaluated"].(float64) != 2 {
		t.Errorf("evaluated = %v, want 2", result["evaluated"])
	}
}

func TestServer_JobNotFound(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	rec := do(t, s, http.MethodGet, "/api/jobs/nonexistent", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServer_RunNotFound(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	rec := do(t, s, http.MethodGet, "/api/runs/nonexistent", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("http_requests_in_flight")) {
		t.Error("metrics output missing registered series")
	}
}
