package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/venatrix/threatlens/internal/adapter/repository"
	"github.com/venatrix/threatlens/internal/core/service"
)

func newTestHandler(t *testing.T) *RestHandler {
	t.Helper()
	store := repository.NewMemoryStore()
	reports := service.NewReportRepository(store, 0)
	indicators := service.NewIndicatorRepository(store, nil, 0)
	pipeline := service.NewPipeline(reports, indicators, store, nil, nil, service.PipelineConfig{
		Workers:           2,
		EnrichmentTimeout: time.Second,
	})
	return NewRestHandler(pipeline, reports, indicators, nil)
}

const runPayload = `[
	{"title": "Conti ransomware hits hospital systems", "description": "Encrypted patient records", "content": "Beaconing to 203.0.113.9", "source": "feed-a"},
	{"title": "New Conti ransomware variant strikes hospital networks", "content": "Same host 203.0.113.9 reused", "source": "feed-b"}
]`

func runOnce(t *testing.T, h *RestHandler) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", strings.NewReader(runPayload))
	rec := httptest.NewRecorder()
	h.RunPipeline(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("run returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestRunPipelineEndpoint(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", strings.NewReader(runPayload))
	rec := httptest.NewRecorder()
	h.RunPipeline(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var result service.PipelineResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !result.Success || result.ProcessedCount != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestRunPipelineRejectsBadJSON(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.RunPipeline(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPipelineStatusEndpoint(t *testing.T) {
	h := newTestHandler(t)
	runOnce(t, h)

	rec := httptest.NewRecorder()
	h.PipelineStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pipeline/status", nil))

	var status struct {
		Processing bool          `json:"processing"`
		Stats      service.Stats `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if status.Processing {
		t.Error("pipeline should be idle")
	}
	if status.Stats.TotalReports != 2 || status.Stats.RunCount != 1 {
		t.Errorf("stats = %+v", status.Stats)
	}
}

func TestListReportsJSONAndCSV(t *testing.T) {
	h := newTestHandler(t)
	runOnce(t, h)

	rec := httptest.NewRecorder()
	h.ListReports(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("json status = %d", rec.Code)
	}
	var reports []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &reports); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("reports = %d, want 2", len(reports))
	}

	rec = httptest.NewRecorder()
	h.ListReports(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports?format=csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "id,title,source,timestamp,severity,category,description") {
		t.Errorf("csv header missing: %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ListReports(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports?format=xml", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format status = %d, want 400", rec.Code)
	}
}

func TestListIndicatorsFilters(t *testing.T) {
	h := newTestHandler(t)
	runOnce(t, h)

	rec := httptest.NewRecorder()
	h.ListIndicators(rec, httptest.NewRequest(http.MethodGet, "/api/v1/indicators?type=ip", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var indicators []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &indicators); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(indicators) == 0 {
		t.Fatal("expected ip indicators")
	}
	for _, ind := range indicators {
		if ind.Type != "ip" {
			t.Errorf("type filter leaked %q", ind.Type)
		}
	}

	rec = httptest.NewRecorder()
	h.ListIndicators(rec, httptest.NewRequest(http.MethodGet, "/api/v1/indicators?min_confidence=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad min_confidence status = %d, want 400", rec.Code)
	}
}

func TestCampaignsEndpoint(t *testing.T) {
	h := newTestHandler(t)
	runOnce(t, h)

	rec := httptest.NewRecorder()
	h.ListCampaigns(rec, httptest.NewRequest(http.MethodGet, "/api/v1/campaigns", nil))

	var resp struct {
		Count     int               `json:"count"`
		Campaigns []json.RawMessage `json:"campaigns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Count != 1 || len(resp.Campaigns) != 1 {
		t.Errorf("campaigns = %+v", resp)
	}
}

func TestStopPipelineEndpoint(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.StopPipeline(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/stop", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
