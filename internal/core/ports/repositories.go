package ports

import (
	"context"

	"github.com/venatrix/threatlens/internal/core/domain"
)

// Collection names under which the pipeline persists its state. Each is a
// whole-collection JSON blob; a Set replaces the previous blob atomically.
const (
	CollectionReports    = "reports"
	CollectionIndicators = "indicators"
	CollectionStats      = "stats"
)

// CollectionStore is the persistence boundary: a key-value store of named
// collections serialized as JSON blobs. Get returns nil data (and nil error)
// when the collection has never been written.
type CollectionStore interface {
	Get(ctx context.Context, collection string) ([]byte, error)
	Set(ctx context.Context, collection string, data []byte) error
	Close() error
}

// IndicatorFilter narrows an indicator search.
type IndicatorFilter struct {
	Type          domain.IndicatorType
	MinConfidence float64
	Limit         int
}

// IndicatorIndex is a full-text search index over stored indicators.
// Implementations index value and context and return indicator keys.
type IndicatorIndex interface {
	Index(ind domain.Indicator) error
	Search(ctx context.Context, query string, filter IndicatorFilter) ([]string, error)
	Remove(key string) error
	Close() error
}

// ReportProvider is the ingestion boundary: a source of raw report records.
// The pipeline treats the records as opaque text.
type ReportProvider interface {
	FetchReports(ctx context.Context) ([]domain.RawReport, error)
	Name() string
}
