package service

import (
	"context"
	"testing"
	"time"

	"github.com/venatrix/threatlens/internal/core/domain"
)

func sampleReport(title, source string) domain.Report {
	return NormalizeReport(domain.RawReport{
		Title:  title,
		Source: source,
	}, time.Now())
}

func TestUpsertTreatsSameTitleAndSourceAsUpdate(t *testing.T) {
	repo := NewReportRepository(newStubStore(), 0)

	first := sampleReport("Conti ransomware hits hospital systems", "feed-a")
	stored, isNew := repo.Upsert(first)
	if !isNew {
		t.Fatal("first insert should be new")
	}

	update := sampleReport("Conti ransomware hits hospital systems", "feed-a")
	update.Description = "updated details"
	updated, isNew := repo.Upsert(update)
	if isNew {
		t.Error("same (title, source) pair should update, not insert")
	}
	if updated.ID != stored.ID {
		t.Errorf("update changed ID: %q -> %q", stored.ID, updated.ID)
	}
	if repo.Len() != 1 {
		t.Errorf("len = %d, want 1", repo.Len())
	}

	got, ok := repo.Get(stored.ID)
	if !ok || got.Description != "updated details" {
		t.Errorf("stored report not updated: %+v", got)
	}
}

func TestUpsertDifferentSourceIsSeparateReport(t *testing.T) {
	repo := NewReportRepository(newStubStore(), 0)

	repo.Upsert(sampleReport("Conti ransomware hits hospital systems", "feed-a"))
	repo.Upsert(sampleReport("Conti ransomware hits hospital systems", "feed-b"))

	if repo.Len() != 2 {
		t.Errorf("len = %d, want 2 (different sources)", repo.Len())
	}
}

func TestReportCapEvictsOldestFirst(t *testing.T) {
	repo := NewReportRepository(newStubStore(), 2)

	repo.Upsert(sampleReport("first", "feed"))
	repo.Upsert(sampleReport("second", "feed"))
	repo.Upsert(sampleReport("third", "feed"))

	all := repo.All()
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].Title != "second" || all[1].Title != "third" {
		t.Errorf("expected oldest evicted, got titles %q, %q", all[0].Title, all[1].Title)
	}

	// The evicted key is free for reuse as a new report.
	_, isNew := repo.Upsert(sampleReport("first", "feed"))
	if !isNew {
		t.Error("evicted report should re-insert as new")
	}
}

func TestReportSaveLoadPreservesOrder(t *testing.T) {
	store := newStubStore()
	repo := NewReportRepository(store, 0)

	repo.Upsert(sampleReport("alpha", "feed"))
	repo.Upsert(sampleReport("beta", "feed"))
	if err := repo.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := NewReportRepository(store, 0)
	if err := restored.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	all := restored.All()
	if len(all) != 2 || all[0].Title != "alpha" || all[1].Title != "beta" {
		t.Errorf("restored order broken: %+v", all)
	}
}

func TestNormalizeReportDefaults(t *testing.T) {
	now := time.Now()
	report := NormalizeReport(domain.RawReport{
		Title:  "Suspicious activity noted on mail gateway",
		Source: "feed-a",
	}, now)

	if report.ID == "" {
		t.Error("ID not assigned")
	}
	if !report.Timestamp.Equal(now) {
		t.Errorf("missing pub date should fall back to ingestion time, got %v", report.Timestamp)
	}
	if report.Severity != domain.SeverityMedium {
		t.Errorf("severity = %v, want default medium", report.Severity)
	}
	if report.Category != "Unknown" {
		t.Errorf("category = %q, want Unknown", report.Category)
	}
	if report.Indicators == nil {
		t.Error("indicators map not initialized")
	}
}

func TestNormalizeReportDerivesMetadata(t *testing.T) {
	pub := time.Date(2026, 5, 12, 8, 0, 0, 0, time.UTC)
	report := NormalizeReport(domain.RawReport{
		Title:       "LockBit ransomware cripples hospital network",
		Description: "Patient systems encrypted across two sites",
		Source:      "feed-a",
		PubDate:     pub,
	}, time.Now())

	if !report.Timestamp.Equal(pub) {
		t.Errorf("timestamp = %v, want feed pub date", report.Timestamp)
	}
	if report.Severity != domain.SeverityHigh {
		t.Errorf("severity = %v, want high", report.Severity)
	}
	if report.Category != "Ransomware" {
		t.Errorf("category = %q, want Ransomware", report.Category)
	}

	var foundHealthcare bool
	for _, tag := range report.Tags {
		if tag == "Healthcare" {
			foundHealthcare = true
		}
	}
	if !foundHealthcare {
		t.Errorf("tags = %v, expected Healthcare", report.Tags)
	}
}
