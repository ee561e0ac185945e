package domain

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordering position of a severity (low < medium < high < critical).
// Unknown severities rank below low.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// RawReport is a report as delivered by a feed provider, before normalization.
type RawReport struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	Link        string    `json:"link"`
	PubDate     time.Time `json:"pub_date"`
}

// Report is a canonical threat report record.
type Report struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	Link        string    `json:"link,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    Severity  `json:"severity"` // defaults to medium until a heuristic or enrichment overrides it
	Category    string    `json:"category"` // defaults to Unknown
	Tags        []string  `json:"tags"`

	// Indicators extracted from this report, bucketed by type. Values here
	// always trace back to entries in the indicator store.
	Indicators map[IndicatorType][]string `json:"indicators"`

	EnrichmentSummary string `json:"enrichment_summary,omitempty"`
}

// DedupKey identifies a report by (title, source). A re-ingested report with
// the same key is treated as an update of the existing record.
func (r Report) DedupKey() string {
	return r.Title + "|" + r.Source
}

// Text returns the concatenated free text the extractor runs over.
func (r Report) Text() string {
	return r.Title + "\n" + r.Description + "\n" + r.Content
}
