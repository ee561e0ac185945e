package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/venatrix/threatlens/internal/core/domain"
)

// ReportsCSV renders reports as a flat CSV with the columns
// id, title, source, timestamp, severity, category, description.
func ReportsCSV(reports []domain.Report) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"id", "title", "source", "timestamp", "severity", "category", "description"}); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range reports {
		record := []string{
			r.ID,
			r.Title,
			r.Source,
			r.Timestamp.UTC().Format(time.RFC3339),
			string(r.Severity),
			r.Category,
			r.Description,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write report %s: %w", r.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.String(), nil
}

// IndicatorsCSV renders indicators as a flat CSV with the columns
// type, value, confidence, context, sourceReportId.
func IndicatorsCSV(indicators []domain.Indicator) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"type", "value", "confidence", "context", "sourceReportId"}); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, ind := range indicators {
		record := []string{
			string(ind.Type),
			ind.Value,
			strconv.FormatFloat(ind.Confidence, 'f', 2, 64),
			ind.Context,
			ind.SourceReportID,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write indicator %s: %w", ind.Value, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.String(), nil
}
