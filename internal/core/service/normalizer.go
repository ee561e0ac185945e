package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/venatrix/threatlens/internal/core/domain"
)

// NormalizeReport converts a raw feed record into a canonical report:
// generated ID, defaulted severity and category, keyword-derived tags.
// Indicators are attached by the extraction stage afterwards.
func NormalizeReport(raw domain.RawReport, now time.Time) domain.Report {
	timestamp := raw.PubDate
	if timestamp.IsZero() {
		timestamp = now
	}

	tags := domain.DeriveTags(raw.Title, raw.Description)

	return domain.Report{
		ID:          uuid.New().String(),
		Title:       raw.Title,
		Description: raw.Description,
		Content:     raw.Content,
		Source:      raw.Source,
		Link:        raw.Link,
		Timestamp:   timestamp,
		Severity:    domain.DeriveSeverity(raw.Title, raw.Description),
		Category:    domain.DeriveCategory(tags),
		Tags:        tags,
		Indicators:  make(map[domain.IndicatorType][]string),
	}
}
