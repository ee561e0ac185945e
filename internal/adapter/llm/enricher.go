package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/venatrix/threatlens/internal/core/ports"
)

// EnricherConfig configures the enrichment client. An empty APIKey disables
// the client entirely, which callers must treat as a normal condition.
type EnricherConfig struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func DefaultEnricherConfig() EnricherConfig {
	return EnricherConfig{
		APIURL:  "https://api.openai.com/v1/chat/completions",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// Enricher calls an OpenAI-compatible chat-completions endpoint to produce
// campaign labels and report summaries. It never panics across its boundary:
// every failure mode, timeouts included, surfaces as an error the pipeline
// downgrades to heuristic output.
type Enricher struct {
	config EnricherConfig
	client *ResilientClient
}

func NewEnricher(config EnricherConfig) *Enricher {
	if config.APIURL == "" {
		config.APIURL = DefaultEnricherConfig().APIURL
	}
	if config.Model == "" {
		config.Model = DefaultEnricherConfig().Model
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultEnricherConfig().Timeout
	}
	return &Enricher{
		config: config,
		client: NewResilientClient(config.Timeout, DefaultResilientClientConfig()),
	}
}

func (e *Enricher) Enabled() bool {
	return e.config.APIKey != ""
}

// Generate sends the prompt and returns the generated text with timing. The
// caller's context carries the hard deadline; the HTTP client adds its own
// transport timeout on top.
func (e *Enricher) Generate(ctx context.Context, req ports.EnrichmentRequest) (*ports.EnrichmentResult, error) {
	if !e.Enabled() {
		return nil, fmt.Errorf("enrichment is not configured")
	}

	timer := StartTimer()
	defer timer.ObserveDuration()

	model := e.config.Model
	if req.ModelHint != "" {
		model = req.ModelHint
	}

	payload := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a concise threat intelligence assistant."},
			{"role": "user", "content": req.Prompt},
		},
		"temperature": 0.3,
		"max_tokens":  500,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		RecordRequest("error")
		return nil, fmt.Errorf("failed to marshal enrichment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.APIURL, bytes.NewReader(body))
	if err != nil {
		RecordRequest("error")
		return nil, fmt.Errorf("failed to create enrichment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		RecordRequest("error")
		return nil, fmt.Errorf("enrichment call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		RecordRequest("error")
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("enrichment API error (status %d): %s", resp.StatusCode, string(raw))
	}

	var decoded struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		RecordRequest("error")
		RecordError("parse")
		return nil, fmt.Errorf("failed to decode enrichment response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		RecordRequest("error")
		RecordError("parse")
		return nil, fmt.Errorf("no choices in enrichment response")
	}

	RecordRequest("success")
	return &ports.EnrichmentResult{
		Text:    decoded.Choices[0].Message.Content,
		Model:   decoded.Model,
		Elapsed: time.Since(start),
	}, nil
}
