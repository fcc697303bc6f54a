package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/fleethealth"
	"github.com/fleetops/fuelcore/internal/orchestrator"
)

func testRouter(t *testing.T) *Router {
	t.Helper()
	watcher, err := config.NewWatcher("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(watcher.Close)
	orch := orchestrator.New(orchestrator.Options{Watcher: watcher, Ring: fleethealth.NewRing(), Shards: 2})
	return NewRouter(orch, nil, "test")
}

func get(t *testing.T, router *Router, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: bad JSON body %q: %v", path, rec.Body.String(), err)
	}
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(t)
	rec, body := get(t, router, "/command-center/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["success"] != true {
		t.Error("expected success=true")
	}
	data := body["data"].(map[string]any)
	if data["version"] != "test" || data["status"] != "ok" {
		t.Errorf("unexpected health payload %v", data)
	}
}

func TestDashboard_CacheFlag(t *testing.T) {
	router := testRouter(t)

	_, first := get(t, router, "/command-center/dashboard")
	if first["cached"] != false {
		t.Errorf("first hit must be uncached, got %v", first["cached"])
	}

	_, second := get(t, router, "/command-center/dashboard")
	if second["cached"] != true {
		t.Errorf("second hit inside the TTL must be cached, got %v", second["cached"])
	}

	_, bypassed := get(t, router, "/command-center/dashboard?bypass_cache=true")
	if bypassed["cached"] != false {
		t.Errorf("bypass_cache must rebuild, got %v", bypassed["cached"])
	}
}

func TestUnknownTruckIs404(t *testing.T) {
	router := testRouter(t)
	rec, body := get(t, router, "/command-center/truck/T999")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body["success"] != false {
		t.Error("expected success=false")
	}
}

func TestActionsAndInsightsEndpoints(t *testing.T) {
	router := testRouter(t)

	rec, body := get(t, router, "/command-center/actions?limit=5&priority=CRITICAL")
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Errorf("actions endpoint failed: %d %v", rec.Code, body)
	}

	rec, body = get(t, router, "/command-center/insights")
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Errorf("insights endpoint failed: %d %v", rec.Code, body)
	}
}

func TestTrendsRecordAndFetch(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/command-center/trends/record", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("record failed: %d", rec.Code)
	}

	_, body := get(t, router, "/command-center/trends?hours=24")
	series, ok := body["data"].([]any)
	if !ok || len(series) != 1 {
		t.Errorf("expected the recorded snapshot in the series, got %v", body["data"])
	}
}

func TestSensorHealthEndpoints(t *testing.T) {
	router := testRouter(t)

	for _, path := range []string{
		"/sensor-health/summary",
		"/sensor-health/idle-validation?only_issues=true",
		"/sensor-health/gps-quality",
		"/sensor-health/voltage-history/T001?hours=24",
	} {
		rec, body := get(t, router, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
		if body["success"] != true {
			t.Errorf("%s: expected success=true", path)
		}
	}
}

func TestHoursClamping(t *testing.T) {
	router := testRouter(t)

	// Out-of-range hours values clamp rather than error.
	for _, path := range []string{
		"/command-center/trends?hours=0",
		"/command-center/trends?hours=9999",
		"/command-center/trends?hours=bogus",
	} {
		rec, _ := get(t, router, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
