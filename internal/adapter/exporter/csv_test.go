package exporter

import (
	"encoding/csv"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/venatrix/threatlens/internal/core/domain"
)

func TestReportsCSVColumns(t *testing.T) {
	ts := time.Date(2026, 5, 12, 8, 30, 0, 0, time.UTC)
	reports := []domain.Report{
		{
			ID:          "r1",
			Title:       "Conti ransomware hits hospital systems",
			Source:      "feed-a",
			Timestamp:   ts,
			Severity:    domain.SeverityHigh,
			Category:    "Ransomware",
			Description: "Encrypted patient records",
		},
	}

	out, err := ReportsCSV(reports)
	if err != nil {
		t.Fatalf("ReportsCSV failed: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d records", len(records))
	}

	wantHeader := []string{"id", "title", "source", "timestamp", "severity", "category", "description"}
	if !reflect.DeepEqual(records[0], wantHeader) {
		t.Errorf("header = %v, want %v", records[0], wantHeader)
	}

	wantRow := []string{"r1", "Conti ransomware hits hospital systems", "feed-a", "2026-05-12T08:30:00Z", "high", "Ransomware", "Encrypted patient records"}
	if !reflect.DeepEqual(records[1], wantRow) {
		t.Errorf("row = %v, want %v", records[1], wantRow)
	}
}

func TestIndicatorsCSVColumns(t *testing.T) {
	indicators := []domain.Indicator{
		{
			Type:           domain.IPAddress,
			Value:          "203.0.113.9",
			Confidence:     0.85,
			Context:        "beaconing to 203.0.113.9",
			SourceReportID: "r1",
		},
	}

	out, err := IndicatorsCSV(indicators)
	if err != nil {
		t.Fatalf("IndicatorsCSV failed: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d records", len(records))
	}

	wantHeader := []string{"type", "value", "confidence", "context", "sourceReportId"}
	if !reflect.DeepEqual(records[0], wantHeader) {
		t.Errorf("header = %v, want %v", records[0], wantHeader)
	}

	wantRow := []string{"ip", "203.0.113.9", "0.85", "beaconing to 203.0.113.9", "r1"}
	if !reflect.DeepEqual(records[1], wantRow) {
		t.Errorf("row = %v, want %v", records[1], wantRow)
	}
}

func TestCSVEscapesEmbeddedDelimiters(t *testing.T) {
	reports := []domain.Report{
		{ID: "r1", Title: `Report with, comma and "quotes"`, Source: "feed-a", Timestamp: time.Now(), Severity: domain.SeverityMedium, Category: "Unknown"},
	}

	out, err := ReportsCSV(reports)
	if err != nil {
		t.Fatalf("ReportsCSV failed: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if records[1][1] != `Report with, comma and "quotes"` {
		t.Errorf("title not round-tripped: %q", records[1][1])
	}
}

func TestEmptyCollections(t *testing.T) {
	reportsOut, err := ReportsCSV(nil)
	if err != nil {
		t.Fatalf("ReportsCSV(nil) failed: %v", err)
	}
	if !strings.HasPrefix(reportsOut, "id,title,source") {
		t.Errorf("empty export should still carry the header: %q", reportsOut)
	}

	jsonOut, err := ReportsJSON(nil)
	if err != nil {
		t.Fatalf("ReportsJSON(nil) failed: %v", err)
	}
	if strings.TrimSpace(jsonOut) != "[]" {
		t.Errorf("empty JSON export = %q, want []", jsonOut)
	}
}
