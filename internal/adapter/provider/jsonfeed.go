package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/venatrix/threatlens/internal/core/domain"
)

// feedItem is the wire shape of one report in a JSON feed. Timestamps that
// fail to parse fall back to ingestion time downstream.
type feedItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Link        string `json:"link"`
	PubDate     string `json:"pub_date"`
}

// JSONFeedProvider fetches raw reports from an HTTP endpoint serving a JSON
// array of feed items.
type JSONFeedProvider struct {
	client *http.Client
	name   string
	url    string
}

func NewJSONFeedProvider(client *http.Client, name, url string) *JSONFeedProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &JSONFeedProvider{
		client: client,
		name:   name,
		url:    url,
	}
}

func (p *JSONFeedProvider) Name() string {
	return p.name
}

func (p *JSONFeedProvider) FetchReports(ctx context.Context) ([]domain.RawReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from %s: %d", p.name, resp.StatusCode)
	}

	var items []feedItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode feed %s: %w", p.name, err)
	}

	reports := make([]domain.RawReport, 0, len(items))
	for _, item := range items {
		if item.Title == "" {
			continue
		}
		reports = append(reports, domain.RawReport{
			Title:       item.Title,
			Description: item.Description,
			Content:     item.Content,
			Source:      p.name,
			Link:        item.Link,
			PubDate:     parseFeedTime(item.PubDate),
		})
	}
	return reports, nil
}

func parseFeedTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
