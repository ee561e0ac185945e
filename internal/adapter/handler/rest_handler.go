package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/venatrix/threatlens/internal/adapter/exporter"
	"github.com/venatrix/threatlens/internal/core/domain"
	"github.com/venatrix/threatlens/internal/core/ports"
	"github.com/venatrix/threatlens/internal/core/service"
)

type RestHandler struct {
	pipeline   *service.Pipeline
	reports    *service.ReportRepository
	indicators *service.IndicatorRepository
	providers  []ports.ReportProvider
}

func NewRestHandler(pipeline *service.Pipeline, reports *service.ReportRepository, indicators *service.IndicatorRepository, providers []ports.ReportProvider) *RestHandler {
	return &RestHandler{
		pipeline:   pipeline,
		reports:    reports,
		indicators: indicators,
		providers:  providers,
	}
}

// Health check endpoint
func (h *RestHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "threatlens-api",
	}
	writeJSON(w, http.StatusOK, response)
}

// RunPipeline triggers one pipeline pass. A JSON array of raw reports in the
// request body is processed directly; an empty body pulls from the configured
// providers instead. A concurrent run gets 409.
func (h *RestHandler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var raw []domain.RawReport
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}

	var result *service.PipelineResult
	var err error
	if len(raw) > 0 {
		result, err = h.pipeline.Run(r.Context(), raw)
	} else {
		result, err = h.pipeline.RunFromProviders(r.Context(), h.providers)
	}

	if err != nil {
		if errors.Is(err, service.ErrPipelineBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// StopPipeline force-stops an in-flight run.
func (h *RestHandler) StopPipeline(w http.ResponseWriter, r *http.Request) {
	h.pipeline.ForceStop()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "stopped",
		"processing": h.pipeline.IsProcessing(),
	})
}

// PipelineStatus returns the processing flag and cross-run statistics.
func (h *RestHandler) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"processing": h.pipeline.IsProcessing(),
		"stats":      h.pipeline.Stats(),
	})
}

// ListReports exports the report collection as JSON or CSV.
func (h *RestHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports := h.reports.All()

	switch r.URL.Query().Get("format") {
	case "csv":
		data, err := exporter.ReportsCSV(reports)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to export reports")
			return
		}
		writeCSV(w, "reports.csv", data)

	case "json", "":
		data, err := exporter.ReportsJSON(reports)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to export reports")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(data)); err != nil {
			log.Printf("Error writing reports response: %v", err)
		}

	default:
		writeError(w, http.StatusBadRequest, "unsupported format (use 'json' or 'csv')")
	}
}

// GetReport returns a single report by ID.
func (h *RestHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing 'id' parameter")
		return
	}

	report, ok := h.reports.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListIndicators searches or lists indicators, as JSON or CSV. Without a
// query it returns the full collection ordered by confidence.
func (h *RestHandler) ListIndicators(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := ports.IndicatorFilter{
		Type: domain.IndicatorType(q.Get("type")),
	}
	if raw := q.Get("min_confidence"); raw != "" {
		minConf, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'min_confidence' parameter")
			return
		}
		filter.MinConfidence = minConf
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		filter.Limit = limit
	}

	indicators, err := h.indicators.Search(r.Context(), q.Get("q"), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query indicators")
		return
	}

	switch q.Get("format") {
	case "csv":
		data, err := exporter.IndicatorsCSV(indicators)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to export indicators")
			return
		}
		writeCSV(w, "indicators.csv", data)

	case "json", "":
		data, err := exporter.IndicatorsJSON(indicators)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to export indicators")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(data)); err != nil {
			log.Printf("Error writing indicators response: %v", err)
		}

	default:
		writeError(w, http.StatusBadRequest, "unsupported format (use 'json' or 'csv')")
	}
}

// ListCampaigns returns the campaigns from the latest correlation pass.
func (h *RestHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns := h.pipeline.Campaigns()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(campaigns),
		"campaigns": campaigns,
	})
}

// GetStats returns the cross-run statistics snapshot.
func (h *RestHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Stats())
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeCSV(w http.ResponseWriter, filename, data string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(data)); err != nil {
		log.Printf("Error writing CSV response: %v", err)
	}
}
