package ports

import (
	"context"
	"time"
)

// EnrichmentRequest asks the text-generation boundary for a human-readable
// label or summary.
type EnrichmentRequest struct {
	Title     string
	Prompt    string
	ModelHint string
}

// EnrichmentResult is a successful generation.
type EnrichmentResult struct {
	Text    string
	Model   string
	Elapsed time.Duration
}

// Enricher is the optional call-out to a text-generation service.
// Unavailability and timeouts are normal outcomes: implementations return an
// error instead of blocking or panicking, and callers fall back to heuristic
// labeling.
type Enricher interface {
	Generate(ctx context.Context, req EnrichmentRequest) (*EnrichmentResult, error)
	Enabled() bool
}
