package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/venatrix/threatlens/internal/core/domain"
	"github.com/venatrix/threatlens/internal/core/ports"
)

// fakeEnricher scripts enrichment outcomes for pipeline tests.
type fakeEnricher struct {
	text    string
	err     error
	block   chan struct{} // when set, Generate waits for close or ctx cancel
	mu      sync.Mutex
	calls   int
	enabled bool
}

func (f *fakeEnricher) Enabled() bool { return f.enabled }

func (f *fakeEnricher) Generate(ctx context.Context, _ ports.EnrichmentRequest) (*ports.EnrichmentResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ports.EnrichmentResult{Text: f.text, Model: "fake"}, nil
}

func (f *fakeEnricher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingNotifier records high-severity alerts.
type countingNotifier struct {
	mu      sync.Mutex
	reports []domain.Report
	err     error
}

func (n *countingNotifier) NotifyHighSeverityReport(report domain.Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, report)
	return n.err
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reports)
}

func campaignRawReports() []domain.RawReport {
	return []domain.RawReport{
		{
			Title:       "Conti ransomware hits hospital systems",
			Description: "Encrypted patient records across three facilities",
			Content:     "Beaconing to 203.0.113.9 observed during recovery",
			Source:      "feed-a",
		},
		{
			Title:       "New Conti ransomware variant strikes hospital networks",
			Content:     "Same infrastructure at 203.0.113.9 reused by the operators",
			Source:      "feed-b",
		},
	}
}

func newTestPipeline(enricher ports.Enricher, notifiers []ports.AlertNotifier) *Pipeline {
	store := newStubStore()
	reports := NewReportRepository(store, 0)
	indicators := NewIndicatorRepository(store, nil, 0)
	return NewPipeline(reports, indicators, store, enricher, notifiers, PipelineConfig{
		Workers:           2,
		EnrichmentTimeout: time.Second,
		SummarizeReports:  false,
	})
}

func TestRunProcessesAndCorrelates(t *testing.T) {
	p := newTestPipeline(nil, nil)

	result, err := p.Run(context.Background(), campaignRawReports())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !result.Success {
		t.Error("expected success")
	}
	if result.ProcessedCount != 2 {
		t.Errorf("processed = %d, want 2", result.ProcessedCount)
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors = %v, want none", result.Errors)
	}
	if result.CampaignCount != 1 {
		t.Errorf("campaigns = %d, want 1", result.CampaignCount)
	}

	campaigns := p.Campaigns()
	if len(campaigns) != 1 {
		t.Fatalf("Campaigns() = %d, want 1", len(campaigns))
	}
	if campaigns[0].Name == "" {
		t.Error("campaign should carry a heuristic name without an enricher")
	}

	stats := p.Stats()
	if stats.TotalReports != 2 || stats.RunCount != 1 || stats.ActiveCampaigns != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalIndicators == 0 {
		t.Error("expected extracted indicators in stats")
	}
}

func TestRunRejectsConcurrentInvocation(t *testing.T) {
	enricher := &fakeEnricher{
		enabled: true,
		text:    "Campaign\nDetails",
		block:   make(chan struct{}),
	}
	p := newTestPipeline(enricher, nil)

	done := make(chan *PipelineResult, 1)
	go func() {
		result, err := p.Run(context.Background(), campaignRawReports())
		if err != nil {
			t.Errorf("first Run failed: %v", err)
		}
		done <- result
	}()

	// Wait until the first run is inside the enrichment stage.
	deadline := time.After(5 * time.Second)
	for enricher.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first run never reached enrichment")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !p.IsProcessing() {
		t.Error("IsProcessing should report true during a run")
	}
	if _, err := p.Run(context.Background(), nil); !errors.Is(err, ErrPipelineBusy) {
		t.Errorf("concurrent Run error = %v, want ErrPipelineBusy", err)
	}

	close(enricher.block)
	result := <-done
	if result == nil || !result.Success {
		t.Errorf("first run result = %+v", result)
	}
	if p.IsProcessing() {
		t.Error("IsProcessing should reset after the run")
	}
}

func TestEnrichmentFailureDegradesToHeuristics(t *testing.T) {
	enricher := &fakeEnricher{enabled: true, err: fmt.Errorf("model overloaded")}
	p := newTestPipeline(enricher, nil)

	result, err := p.Run(context.Background(), campaignRawReports())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !result.Success {
		t.Error("enrichment failure must not fail the run")
	}
	if len(result.Errors) != 0 {
		t.Errorf("enrichment failure must not land in Errors, got %v", result.Errors)
	}
	if len(result.Notes) == 0 {
		t.Error("expected a degradation note")
	}

	campaigns := p.Campaigns()
	if len(campaigns) != 1 || campaigns[0].Name == "" {
		t.Errorf("heuristic label missing after enrichment failure: %+v", campaigns)
	}
}

func TestEnrichmentOverridesCampaignLabel(t *testing.T) {
	enricher := &fakeEnricher{enabled: true, text: "Hive Hospital Extortion\nCoordinated extortion wave against healthcare."}
	p := newTestPipeline(enricher, nil)

	if _, err := p.Run(context.Background(), campaignRawReports()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	campaigns := p.Campaigns()
	if len(campaigns) != 1 {
		t.Fatalf("expected 1 campaign, got %d", len(campaigns))
	}
	if campaigns[0].Name != "Hive Hospital Extortion" {
		t.Errorf("name = %q, want enriched label", campaigns[0].Name)
	}
	if campaigns[0].Description != "Coordinated extortion wave against healthcare." {
		t.Errorf("description = %q", campaigns[0].Description)
	}
}

func TestNewHighSeverityReportsAreNotified(t *testing.T) {
	notifier := &countingNotifier{}
	p := newTestPipeline(nil, []ports.AlertNotifier{notifier})

	if _, err := p.Run(context.Background(), campaignRawReports()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if notifier.count() != 2 {
		t.Errorf("notified %d reports, want 2 high-severity", notifier.count())
	}

	// A second ingestion of the same reports is an update, not a new alert.
	if _, err := p.Run(context.Background(), campaignRawReports()); err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if notifier.count() != 2 {
		t.Errorf("re-ingestion re-alerted: %d notifications", notifier.count())
	}
}

func TestNotifierFailureDoesNotFailRun(t *testing.T) {
	notifier := &countingNotifier{err: fmt.Errorf("slack unavailable")}
	p := newTestPipeline(nil, []ports.AlertNotifier{notifier})

	result, err := p.Run(context.Background(), campaignRawReports())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.Success {
		t.Error("notifier failure must not fail the run")
	}
}

func TestReingestionDeduplicatesReports(t *testing.T) {
	p := newTestPipeline(nil, nil)

	for i := 0; i < 2; i++ {
		result, err := p.Run(context.Background(), campaignRawReports())
		if err != nil {
			t.Fatalf("Run %d returned error: %v", i, err)
		}
		if result.ProcessedCount != 2 {
			t.Errorf("Run %d processed = %d, want 2", i, result.ProcessedCount)
		}
	}

	if got := p.Stats().TotalReports; got != 2 {
		t.Errorf("total reports = %d, want 2 after re-ingestion", got)
	}
	if got := p.Stats().RunCount; got != 2 {
		t.Errorf("run count = %d, want 2", got)
	}
}

func TestPersistenceFailureIsBestEffort(t *testing.T) {
	store := newStubStore()
	store.failSet = true
	reports := NewReportRepository(store, 0)
	indicators := NewIndicatorRepository(store, nil, 0)
	p := NewPipeline(reports, indicators, store, nil, nil, DefaultPipelineConfig())

	result, err := p.Run(context.Background(), campaignRawReports())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.Success {
		t.Error("store failure must not fail the run; memory stays authoritative")
	}
	if reports.Len() != 2 {
		t.Errorf("in-memory reports = %d, want 2", reports.Len())
	}
}

func TestForceStopWhenIdle(t *testing.T) {
	p := newTestPipeline(nil, nil)
	p.ForceStop()
	if p.IsProcessing() {
		t.Error("ForceStop on idle pipeline should leave it idle")
	}
}

func TestLoadRestoresState(t *testing.T) {
	store := newStubStore()
	reports := NewReportRepository(store, 0)
	indicators := NewIndicatorRepository(store, nil, 0)
	p := NewPipeline(reports, indicators, store, nil, nil, DefaultPipelineConfig())

	if _, err := p.Run(context.Background(), campaignRawReports()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	reports2 := NewReportRepository(store, 0)
	indicators2 := NewIndicatorRepository(store, nil, 0)
	p2 := NewPipeline(reports2, indicators2, store, nil, nil, DefaultPipelineConfig())
	if err := p2.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if reports2.Len() != 2 {
		t.Errorf("restored reports = %d, want 2", reports2.Len())
	}
	if p2.Stats().RunCount != 1 {
		t.Errorf("restored run count = %d, want 1", p2.Stats().RunCount)
	}
}
