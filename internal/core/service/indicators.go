package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/venatrix/threatlens/internal/core/domain"
	"github.com/venatrix/threatlens/internal/core/ports"
)

const DefaultMaxIndicators = 10000

// IndicatorRepository is the indicator store: a mapping from (type,
// normalized value) to the best-confidence sighting, with an optional
// full-text index and a capacity cap that evicts lowest-confidence entries
// first.
type IndicatorRepository struct {
	store         ports.CollectionStore
	index         ports.IndicatorIndex // may be nil
	maxIndicators int

	mu    sync.RWMutex
	byKey map[string]domain.Indicator
}

func NewIndicatorRepository(store ports.CollectionStore, index ports.IndicatorIndex, maxIndicators int) *IndicatorRepository {
	if maxIndicators <= 0 {
		maxIndicators = DefaultMaxIndicators
	}
	return &IndicatorRepository{
		store:         store,
		index:         index,
		maxIndicators: maxIndicators,
		byKey:         make(map[string]domain.Indicator),
	}
}

// Load restores the collection from the store and rebuilds the search index.
func (r *IndicatorRepository) Load(ctx context.Context) error {
	data, err := r.store.Get(ctx, ports.CollectionIndicators)
	if err != nil {
		return fmt.Errorf("failed to load indicators collection: %w", err)
	}
	if data == nil {
		return nil
	}

	var indicators []domain.Indicator
	if err := json.Unmarshal(data, &indicators); err != nil {
		return fmt.Errorf("failed to decode indicators collection: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey = make(map[string]domain.Indicator, len(indicators))
	for _, ind := range indicators {
		r.byKey[ind.Key()] = ind
		if r.index != nil {
			if err := r.index.Index(ind); err != nil {
				return fmt.Errorf("failed to rebuild indicator index: %w", err)
			}
		}
	}
	return nil
}

// Add merges a batch of indicators extracted from one report. On a duplicate
// key the higher-confidence record wins; a lower-confidence re-observation
// never downgrades the stored one. Returns the number of newly created
// entries.
func (r *IndicatorRepository) Add(indicators []domain.Indicator, reportID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, ind := range indicators {
		ind.SourceReportID = reportID
		key := ind.Key()

		existing, ok := r.byKey[key]
		if ok {
			if ind.Confidence <= existing.Confidence {
				continue
			}
			// Confidence upgrade keeps the original first-seen time.
			ind.FirstSeen = existing.FirstSeen
		} else {
			added++
		}

		r.byKey[key] = ind
		if r.index != nil {
			if err := r.index.Index(ind); err != nil {
				// Index is an acceleration structure, not ground truth.
				continue
			}
		}
	}

	r.evictLocked()
	return added
}

// evictLocked enforces the capacity cap by dropping lowest-confidence
// entries first.
func (r *IndicatorRepository) evictLocked() {
	if len(r.byKey) <= r.maxIndicators {
		return
	}

	all := make([]domain.Indicator, 0, len(r.byKey))
	for _, ind := range r.byKey {
		all = append(all, ind)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Confidence < all[j].Confidence })

	for _, ind := range all[:len(r.byKey)-r.maxIndicators] {
		key := ind.Key()
		delete(r.byKey, key)
		if r.index != nil {
			_ = r.index.Remove(key)
		}
	}
}

// All returns every stored indicator sorted descending by confidence, with a
// stable tie-break on type and value.
func (r *IndicatorRepository) All() []domain.Indicator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Indicator, 0, len(r.byKey))
	for _, ind := range r.byKey {
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func (r *IndicatorRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// CountByType returns indicator counts per type.
func (r *IndicatorRepository) CountByType() map[domain.IndicatorType]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.IndicatorType]int)
	for _, ind := range r.byKey {
		counts[ind.Type]++
	}
	return counts
}

// Search queries the full-text index when one is configured, falling back to
// a linear substring scan otherwise.
func (r *IndicatorRepository) Search(ctx context.Context, query string, filter ports.IndicatorFilter) ([]domain.Indicator, error) {
	if r.index != nil && query != "" {
		keys, err := r.index.Search(ctx, query, filter)
		if err != nil {
			return nil, fmt.Errorf("indicator search failed: %w", err)
		}

		r.mu.RLock()
		defer r.mu.RUnlock()
		out := make([]domain.Indicator, 0, len(keys))
		for _, key := range keys {
			if ind, ok := r.byKey[key]; ok {
				out = append(out, ind)
			}
		}
		return out, nil
	}

	return r.scan(query, filter), nil
}

func (r *IndicatorRepository) scan(query string, filter ports.IndicatorFilter) []domain.Indicator {
	lower := strings.ToLower(query)

	var out []domain.Indicator
	for _, ind := range r.All() {
		if filter.Type != "" && ind.Type != filter.Type {
			continue
		}
		if ind.Confidence < filter.MinConfidence {
			continue
		}
		if lower != "" &&
			!strings.Contains(strings.ToLower(ind.Value), lower) &&
			!strings.Contains(strings.ToLower(ind.Context), lower) {
			continue
		}
		out = append(out, ind)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Save persists the whole collection, best-effort.
func (r *IndicatorRepository) Save(ctx context.Context) error {
	all := r.All()
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to encode indicators collection: %w", err)
	}
	if err := r.store.Set(ctx, ports.CollectionIndicators, data); err != nil {
		return fmt.Errorf("failed to persist indicators collection: %w", err)
	}
	return nil
}
