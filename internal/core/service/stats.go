package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/venatrix/threatlens/internal/core/domain"
	"github.com/venatrix/threatlens/internal/core/ports"
)

// Stats summarizes the state of the pipeline across runs. Persisted as the
// third collection blob, best-effort like the others.
type Stats struct {
	TotalReports     int                          `json:"total_reports"`
	TotalIndicators  int                          `json:"total_indicators"`
	IndicatorsByType map[domain.IndicatorType]int `json:"indicators_by_type"`
	ActiveCampaigns  int                          `json:"active_campaigns"`
	LastRun          time.Time                    `json:"last_run"`
	RunCount         int                          `json:"run_count"`
	ErrorCount       int                          `json:"error_count"`
}

func loadStats(ctx context.Context, store ports.CollectionStore) (Stats, error) {
	var stats Stats

	data, err := store.Get(ctx, ports.CollectionStats)
	if err != nil {
		return stats, fmt.Errorf("failed to load stats collection: %w", err)
	}
	if data == nil {
		return stats, nil
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("failed to decode stats collection: %w", err)
	}
	return stats, nil
}

func saveStats(ctx context.Context, store ports.CollectionStore, stats Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	if err := store.Set(ctx, ports.CollectionStats, data); err != nil {
		return fmt.Errorf("failed to persist stats: %w", err)
	}
	return nil
}
