package httputil

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/app"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/config"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/metrics"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/scheduler"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/storage"
)

func newTestServer(t *testing.T, withMetrics bool) *httptest.Server {
	t.Helper()

	cfg := &config.Config{AWSRegion: "us-east-1", ScheduleTagKey: "Schedule"}
	engine := scheduler.NewEngine(scheduler.EngineConfig{})
	a := app.NewWithEngine(cfg, engine, nil, storage.NewMemoryStore())
	if withMetrics {
		a.Metrics = metrics.New()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(NewServeMux(a, logger))
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestServeMux_Routes(t *testing.T) {
	ts := newTestServer(t, true)

	status, body := get(t, ts.URL+"/api/config")
	if status != http.StatusOK || !strings.Contains(body, `"schedule_tag_key":"Schedule"`) {
		t.Errorf("GET /api/config = %d %s", status, body)
	}

	status, body = get(t, ts.URL+"/metrics")
	if status != http.StatusOK || !strings.Contains(body, "go_goroutines") {
		t.Errorf("GET /metrics = %d, missing go collector output", status)
	}

	status, _ = get(t, ts.URL+"/api/runs?limit=5")
	if status != http.StatusOK {
		t.Errorf("GET /api/runs?limit=5 = %d", status)
	}
}

func TestServeMux_MetricsDisabled(t *testing.T) {
	ts := newTestServer(t, false)

	if status, _ := get(t, ts.URL+"/metrics"); status != http.StatusNotFound {
		t.Errorf("GET /metrics with metrics disabled = %d, want 404", status)
	}
}

func TestRequestHandler_RejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t, false)

	body := strings.NewReader(strings.Repeat("x", maxBodyBytes+1))
	resp, err := http.Post(ts.URL+"/api/runs", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
