package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/venatrix/threatlens/internal/core/domain"
	"github.com/venatrix/threatlens/internal/core/ports"
)

const DefaultMaxReports = 1000

// ReportRepository keeps the canonical report collection in memory, in
// ingestion order, and persists it as a whole-collection blob. There is only
// one writer at a time by construction (the pipeline run), so the lock only
// guards readers against in-flight mutation.
type ReportRepository struct {
	store      ports.CollectionStore
	maxReports int

	mu      sync.RWMutex
	reports []domain.Report
	byKey   map[string]int // DedupKey -> position in reports
}

func NewReportRepository(store ports.CollectionStore, maxReports int) *ReportRepository {
	if maxReports <= 0 {
		maxReports = DefaultMaxReports
	}
	return &ReportRepository{
		store:      store,
		maxReports: maxReports,
		byKey:      make(map[string]int),
	}
}

// Load restores the collection from the store. A missing collection is not
// an error; the repository starts empty.
func (r *ReportRepository) Load(ctx context.Context) error {
	data, err := r.store.Get(ctx, ports.CollectionReports)
	if err != nil {
		return fmt.Errorf("failed to load reports collection: %w", err)
	}
	if data == nil {
		return nil
	}

	var reports []domain.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return fmt.Errorf("failed to decode reports collection: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = reports
	r.byKey = make(map[string]int, len(reports))
	for i, rep := range reports {
		r.byKey[rep.DedupKey()] = i
	}
	return nil
}

// Upsert stores a report, treating an identical (title, source) pair as an
// update of the existing record: the original ID and position are kept and
// the remaining fields are replaced. Returns the stored report and whether
// it was new.
func (r *ReportRepository) Upsert(report domain.Report) (domain.Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.byKey[report.DedupKey()]; ok {
		report.ID = r.reports[i].ID
		r.reports[i] = report
		return report, false
	}

	r.reports = append(r.reports, report)
	r.byKey[report.DedupKey()] = len(r.reports) - 1

	// Retention cap: evict oldest first.
	if len(r.reports) > r.maxReports {
		excess := len(r.reports) - r.maxReports
		for _, old := range r.reports[:excess] {
			delete(r.byKey, old.DedupKey())
		}
		r.reports = append([]domain.Report(nil), r.reports[excess:]...)
		for i, rep := range r.reports {
			r.byKey[rep.DedupKey()] = i
		}
	}

	return report, true
}

// Update replaces a report by ID, for enrichment results arriving after
// ingestion. Unknown IDs are ignored.
func (r *ReportRepository) Update(report domain.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.reports {
		if r.reports[i].ID == report.ID {
			delete(r.byKey, r.reports[i].DedupKey())
			r.reports[i] = report
			r.byKey[report.DedupKey()] = i
			return
		}
	}
}

// All returns a copy of the collection in stored order. Correlation depends
// on this order being stable.
func (r *ReportRepository) All() []domain.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Report, len(r.reports))
	copy(out, r.reports)
	return out
}

func (r *ReportRepository) Get(id string) (domain.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rep := range r.reports {
		if rep.ID == id {
			return rep, true
		}
	}
	return domain.Report{}, false
}

func (r *ReportRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reports)
}

// Save persists the whole collection. Persistence is best-effort: callers
// log failures and continue with the in-memory state as source of truth.
func (r *ReportRepository) Save(ctx context.Context) error {
	r.mu.RLock()
	data, err := json.Marshal(r.reports)
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode reports collection: %w", err)
	}
	if err := r.store.Set(ctx, ports.CollectionReports, data); err != nil {
		return fmt.Errorf("failed to persist reports collection: %w", err)
	}
	return nil
}
