package exporter

import (
	"encoding/json"
	"fmt"

	"github.com/venatrix/threatlens/internal/core/domain"
)

// ReportsJSON renders reports as an indented JSON array.
func ReportsJSON(reports []domain.Report) (string, error) {
	if reports == nil {
		reports = []domain.Report{}
	}
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal reports: %w", err)
	}
	return string(data), nil
}

// IndicatorsJSON renders indicators as an indented JSON array.
func IndicatorsJSON(indicators []domain.Indicator) (string, error) {
	if indicators == nil {
		indicators = []domain.Indicator{}
	}
	data, err := json.MarshalIndent(indicators, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal indicators: %w", err)
	}
	return string(data), nil
}
