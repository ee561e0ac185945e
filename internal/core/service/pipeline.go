package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/venatrix/threatlens/internal/core/domain"
	"github.com/venatrix/threatlens/internal/core/ports"
)

// ErrPipelineBusy is returned when a run is invoked while another is still
// in flight. The second invocation performs no work.
var ErrPipelineBusy = errors.New("pipeline run already in progress")

// PipelineConfig tunes a pipeline instance.
type PipelineConfig struct {
	Workers           int           // parallel extraction workers
	EnrichmentTimeout time.Duration // hard cap per enrichment call
	SummarizeReports  bool          // ask the enricher for per-report summaries
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:           4,
		EnrichmentTimeout: 30 * time.Second,
		SummarizeReports:  true,
	}
}

// PipelineResult is what every run returns. Success flips to false only for
// top-level failures; individual per-report extraction or enrichment
// failures reduce ProcessedCount and populate Errors/Notes instead.
type PipelineResult struct {
	Success        bool     `json:"success"`
	ProcessedCount int      `json:"processed_count"`
	CampaignCount  int      `json:"campaign_count"`
	Errors         []string `json:"errors"`
	Notes          []string `json:"notes,omitempty"`
}

// Pipeline orchestrates one full ingestion pass: normalize, extract, score,
// store, correlate, enrich, notify. Only one run executes at a time; a
// concurrent invocation fails fast with ErrPipelineBusy.
type Pipeline struct {
	reports    *ReportRepository
	indicators *IndicatorRepository
	store      ports.CollectionStore
	enricher   ports.Enricher // may be nil
	notifiers  []ports.AlertNotifier
	cfg        PipelineConfig

	processing atomic.Bool

	cancelMu  sync.Mutex
	cancelRun context.CancelFunc

	stateMu   sync.RWMutex
	campaigns []domain.Campaign
	stats     Stats
}

func NewPipeline(reports *ReportRepository, indicators *IndicatorRepository, store ports.CollectionStore, enricher ports.Enricher, notifiers []ports.AlertNotifier, cfg PipelineConfig) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPipelineConfig().Workers
	}
	if cfg.EnrichmentTimeout <= 0 {
		cfg.EnrichmentTimeout = DefaultPipelineConfig().EnrichmentTimeout
	}
	return &Pipeline{
		reports:    reports,
		indicators: indicators,
		store:      store,
		enricher:   enricher,
		notifiers:  notifiers,
		cfg:        cfg,
	}
}

// Load restores persisted state. Missing collections are fine.
func (p *Pipeline) Load(ctx context.Context) error {
	if err := p.reports.Load(ctx); err != nil {
		return err
	}
	if err := p.indicators.Load(ctx); err != nil {
		return err
	}
	stats, err := loadStats(ctx, p.store)
	if err != nil {
		return err
	}
	p.stateMu.Lock()
	p.stats = stats
	p.stateMu.Unlock()
	return nil
}

// IsProcessing reports whether a run is currently in flight.
func (p *Pipeline) IsProcessing() bool {
	return p.processing.Load()
}

// ForceStop flips the processing flag and cancels the in-flight run's
// context. In-flight enrichment calls are abandoned, not awaited.
func (p *Pipeline) ForceStop() {
	p.cancelMu.Lock()
	if p.cancelRun != nil {
		p.cancelRun()
	}
	p.cancelMu.Unlock()
	p.processing.Store(false)
}

// Campaigns returns the campaigns from the latest correlation pass.
func (p *Pipeline) Campaigns() []domain.Campaign {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	out := make([]domain.Campaign, len(p.campaigns))
	copy(out, p.campaigns)
	return out
}

// Stats returns a snapshot of the cross-run statistics.
func (p *Pipeline) Stats() Stats {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.stats
}

// RunFromProviders fetches raw reports from every provider, then runs the
// pipeline over the combined batch. A failing provider is logged and skipped.
func (p *Pipeline) RunFromProviders(ctx context.Context, providers []ports.ReportProvider) (*PipelineResult, error) {
	var raw []domain.RawReport
	for _, provider := range providers {
		batch, err := provider.FetchReports(ctx)
		if err != nil {
			log.Printf("⚠️  Provider %s failed: %v", provider.Name(), err)
			continue
		}
		log.Printf("📥 Provider %s delivered %d reports", provider.Name(), len(batch))
		raw = append(raw, batch...)
	}
	return p.Run(ctx, raw)
}

// Run executes one full pipeline pass over the given raw reports.
func (p *Pipeline) Run(ctx context.Context, raw []domain.RawReport) (result *PipelineResult, err error) {
	if !p.processing.CompareAndSwap(false, true) {
		recordRun("rejected", 0)
		return nil, ErrPipelineBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancelMu.Lock()
	p.cancelRun = cancel
	p.cancelMu.Unlock()

	start := time.Now()
	defer func() {
		cancel()
		p.cancelMu.Lock()
		p.cancelRun = nil
		p.cancelMu.Unlock()
		p.processing.Store(false)

		// A panic anywhere in the run is a top-level failure, never a crash.
		if r := recover(); r != nil {
			recordRun("failure", time.Since(start))
			result = &PipelineResult{
				Success: false,
				Errors:  []string{fmt.Sprintf("unexpected pipeline failure: %v", r)},
			}
			err = nil
		}
	}()

	result = &PipelineResult{Success: true}
	now := time.Now()

	// Stage 1+2: normalize and extract in parallel. Extraction is a pure
	// function per report, so order of completion does not matter, but all
	// of it finishes before correlation reads the collection.
	outcomes := p.extractBatch(raw, now)

	// Stage 3: sequential merge into the stores, preserving input order.
	newHighSeverity := p.mergeOutcomes(outcomes, result)

	// Persistence is best-effort; in-memory state stays authoritative.
	if saveErr := p.reports.Save(runCtx); saveErr != nil {
		log.Printf("⚠️  %v", saveErr)
	}
	if saveErr := p.indicators.Save(runCtx); saveErr != nil {
		log.Printf("⚠️  %v", saveErr)
	}

	// Stage 4: correlation over the full, now-consistent report collection.
	campaigns := domain.Correlate(p.reports.All(), now)

	// Stage 5: optional enrichment. Failures downgrade to heuristic labels.
	p.enrichCampaigns(runCtx, campaigns, result)
	if p.cfg.SummarizeReports {
		p.summarizeReports(runCtx, newHighSeverity, result)
	}

	// Stage 6: fan out high-severity alerts. Observer failures never fail
	// the run.
	for _, report := range newHighSeverity {
		for _, notifier := range p.notifiers {
			if notifyErr := notifier.NotifyHighSeverityReport(report); notifyErr != nil {
				log.Printf("⚠️  Alert notifier failed for report %s: %v", report.ID, notifyErr)
			}
		}
	}

	p.finishRun(runCtx, campaigns, result, now)
	recordRun("success", time.Since(start))
	return result, nil
}

type extractionOutcome struct {
	report     domain.Report
	indicators []domain.Indicator
	err        error
}

// extractBatch normalizes and extracts every raw report using a bounded
// worker pool. Results keep the input order.
func (p *Pipeline) extractBatch(raw []domain.RawReport, now time.Time) []extractionOutcome {
	outcomes := make([]extractionOutcome, len(raw))
	sem := make(chan struct{}, p.cfg.Workers)
	var wg sync.WaitGroup

	for i := range raw {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = extractOne(raw[i], now)
		}(i)
	}
	wg.Wait()
	return outcomes
}

// extractOne runs normalizer + recognizer + scorer for a single report.
// A panicking pattern pass is contained here: the report is kept with empty
// indicator sets and the error recorded.
func extractOne(raw domain.RawReport, now time.Time) (outcome extractionOutcome) {
	outcome.report = NormalizeReport(raw, now)

	defer func() {
		if r := recover(); r != nil {
			outcome.indicators = nil
			outcome.report.Indicators = make(map[domain.IndicatorType][]string)
			outcome.err = fmt.Errorf("extraction failed for %q: %v", raw.Title, r)
		}
	}()

	outcome.indicators = domain.ExtractIndicators(outcome.report.Text(), now)
	for _, ind := range outcome.indicators {
		outcome.report.Indicators[ind.Type] = append(outcome.report.Indicators[ind.Type], ind.Value)
	}
	return outcome
}

// mergeOutcomes upserts reports and indicators sequentially and returns the
// new reports that warrant an alert.
func (p *Pipeline) mergeOutcomes(outcomes []extractionOutcome, result *PipelineResult) []domain.Report {
	var newHighSeverity []domain.Report

	for _, outcome := range outcomes {
		if outcome.err != nil {
			recordExtractionError()
			result.Errors = append(result.Errors, outcome.err.Error())
		}

		stored, isNew := p.reports.Upsert(outcome.report)
		p.indicators.Add(outcome.indicators, stored.ID)

		for _, ind := range outcome.indicators {
			recordIndicator(string(ind.Type))
		}

		if outcome.err == nil {
			result.ProcessedCount++
			recordReportProcessed()
		}
		if isNew && stored.Severity.Rank() >= domain.SeverityHigh.Rank() {
			newHighSeverity = append(newHighSeverity, stored)
		}
	}
	return newHighSeverity
}

// enrichCampaigns asks the enricher for a human-readable label per campaign,
// under a hard timeout. Any failure leaves the heuristic label in place.
func (p *Pipeline) enrichCampaigns(ctx context.Context, campaigns []domain.Campaign, result *PipelineResult) {
	if p.enricher == nil || !p.enricher.Enabled() {
		return
	}

	for i := range campaigns {
		text, err := p.generate(ctx, ports.EnrichmentRequest{
			Title:  campaigns[i].Name,
			Prompt: campaignPrompt(campaigns[i], p.reports),
		})
		if err != nil {
			result.Notes = append(result.Notes, fmt.Sprintf("enrichment unavailable for campaign %q: %v", campaigns[i].Name, err))
			continue
		}

		name, description := parseCampaignLabel(text)
		if name != "" {
			campaigns[i].Name = name
		}
		if description != "" {
			campaigns[i].Description = description
		}
	}
}

// summarizeReports attaches enrichment summaries to new high-severity
// reports, best-effort.
func (p *Pipeline) summarizeReports(ctx context.Context, reports []domain.Report, result *PipelineResult) {
	if p.enricher == nil || !p.enricher.Enabled() {
		return
	}

	for _, report := range reports {
		text, err := p.generate(ctx, ports.EnrichmentRequest{
			Title:  report.Title,
			Prompt: reportPrompt(report),
		})
		if err != nil {
			result.Notes = append(result.Notes, fmt.Sprintf("enrichment unavailable for report %q: %v", report.Title, err))
			continue
		}
		report.EnrichmentSummary = strings.TrimSpace(text)
		p.reports.Update(report)
	}
}

// generate wraps an enricher call in the configured hard timeout so a slow
// service cannot stall the run.
func (p *Pipeline) generate(ctx context.Context, req ports.EnrichmentRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.EnrichmentTimeout)
	defer cancel()

	res, err := p.enricher.Generate(callCtx, req)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (p *Pipeline) finishRun(ctx context.Context, campaigns []domain.Campaign, result *PipelineResult, now time.Time) {
	result.CampaignCount = len(campaigns)
	recordCampaignCount(len(campaigns))

	stats := Stats{
		TotalReports:     p.reports.Len(),
		TotalIndicators:  p.indicators.Len(),
		IndicatorsByType: p.indicators.CountByType(),
		ActiveCampaigns:  len(campaigns),
		LastRun:          now,
	}

	p.stateMu.Lock()
	stats.RunCount = p.stats.RunCount + 1
	stats.ErrorCount = p.stats.ErrorCount + len(result.Errors)
	p.campaigns = campaigns
	p.stats = stats
	p.stateMu.Unlock()

	if err := saveStats(ctx, p.store, stats); err != nil {
		log.Printf("⚠️  %v", err)
	}
}

func campaignPrompt(c domain.Campaign, reports *ReportRepository) string {
	var sb strings.Builder
	sb.WriteString("You are a threat intelligence analyst. The following security reports were clustered into one suspected campaign.\n\n")
	for _, id := range c.ReportIDs {
		if r, ok := reports.Get(id); ok {
			sb.WriteString(fmt.Sprintf("- %s (%s; tags: %s)\n", r.Title, r.Source, strings.Join(r.Tags, ", ")))
		}
	}
	sb.WriteString("\nRespond with a short campaign name on the first line and a one-paragraph description on the following lines. No markdown.\n")
	return sb.String()
}

func reportPrompt(r domain.Report) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following threat report in two sentences for a SOC dashboard.\n\n")
	sb.WriteString("Title: " + r.Title + "\n")
	if r.Description != "" {
		sb.WriteString("Description: " + r.Description + "\n")
	}
	if len(r.Tags) > 0 {
		sb.WriteString("Tags: " + strings.Join(r.Tags, ", ") + "\n")
	}
	return sb.String()
}

// parseCampaignLabel splits a generated label into name (first non-empty
// line) and description (the rest).
func parseCampaignLabel(text string) (string, string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 {
		return "", ""
	}

	name := strings.TrimSpace(strings.TrimPrefix(lines[0], "Name:"))
	description := strings.TrimSpace(strings.Join(lines[1:], "\n"))
	description = strings.TrimSpace(strings.TrimPrefix(description, "Description:"))
	return name, description
}
