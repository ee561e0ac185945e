package domain

import (
	"strings"
	"time"
)

type IndicatorType string

const (
	IPAddress IndicatorType = "ip"
	Domain    IndicatorType = "domain"
	URL       IndicatorType = "url"
	FileHash  IndicatorType = "hash"
	Email     IndicatorType = "email"
)

// IndicatorTypes lists all indicator types in a stable order.
var IndicatorTypes = []IndicatorType{IPAddress, Domain, URL, FileHash, Email}

// Indicator is a single extracted indicator of compromise.
type Indicator struct {
	Type           IndicatorType `json:"type"`           // ip, domain, url, hash, email
	Value          string        `json:"value"`          // Exact matched substring, trimmed
	Context        string        `json:"context"`        // ±50 chars of surrounding text
	Confidence     float64       `json:"confidence"`     // [0.1, 1.0]
	SourceReportID string        `json:"source_report_id,omitempty"`
	FirstSeen      time.Time     `json:"first_seen"`
}

// Key identifies an indicator by (type, normalized value). Two sightings
// with the same key are the same indicator.
func (i Indicator) Key() string {
	return string(i.Type) + "|" + NormalizeIndicatorValue(i.Value, i.Type)
}

// NormalizeIndicatorValue normalizes indicator values for matching.
func NormalizeIndicatorValue(value string, indicatorType IndicatorType) string {
	value = strings.TrimSpace(value)

	switch indicatorType {
	case URL:
		value = strings.ToLower(value)
		value = strings.TrimSuffix(value, "/")
		return value

	case Domain, Email, FileHash:
		return strings.ToLower(value)

	default:
		return value
	}
}
