package repository

import (
	"context"
	"testing"
	"time"

	"github.com/venatrix/threatlens/internal/core/domain"
	"github.com/venatrix/threatlens/internal/core/ports"
)

func newPopulatedIndex(t *testing.T) *BleveIndex {
	t.Helper()
	index, err := NewBleveIndex()
	if err != nil {
		t.Fatalf("NewBleveIndex failed: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	now := time.Now()
	indicators := []domain.Indicator{
		{Type: domain.Domain, Value: "cdn.badhost.io", Context: "malware staging server", Confidence: 0.9, FirstSeen: now},
		{Type: domain.Domain, Value: "mail.badhost.io", Context: "phishing sender infrastructure", Confidence: 0.6, FirstSeen: now},
		{Type: domain.IPAddress, Value: "203.0.113.9", Context: "ransomware c2 beacon", Confidence: 0.8, FirstSeen: now},
	}
	for _, ind := range indicators {
		if err := index.Index(ind); err != nil {
			t.Fatalf("Index(%s) failed: %v", ind.Value, err)
		}
	}
	return index
}

func TestBleveSearchByContext(t *testing.T) {
	index := newPopulatedIndex(t)

	keys, err := index.Search(context.Background(), "phishing", ports.IndicatorFilter{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "domain|mail.badhost.io" {
		t.Errorf("keys = %v, want [domain|mail.badhost.io]", keys)
	}
}

func TestBleveSearchTypeFilter(t *testing.T) {
	index := newPopulatedIndex(t)

	keys, err := index.Search(context.Background(), "malware", ports.IndicatorFilter{Type: domain.IPAddress})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("type filter leaked: %v", keys)
	}
}

func TestBleveSearchConfidenceFloor(t *testing.T) {
	index := newPopulatedIndex(t)

	keys, err := index.Search(context.Background(), "staging", ports.IndicatorFilter{MinConfidence: 0.7})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "domain|cdn.badhost.io" {
		t.Errorf("keys = %v, want only the high-confidence domain", keys)
	}

	keys, err = index.Search(context.Background(), "phishing", ports.IndicatorFilter{MinConfidence: 0.7})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("low-confidence hit leaked past the floor: %v", keys)
	}
}

func TestBleveRemove(t *testing.T) {
	index := newPopulatedIndex(t)

	if err := index.Remove("domain|mail.badhost.io"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	keys, err := index.Search(context.Background(), "phishing", ports.IndicatorFilter{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("removed document still indexed: %v", keys)
	}
}
