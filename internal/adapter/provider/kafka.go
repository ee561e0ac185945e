package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/venatrix/threatlens/internal/core/domain"
)

// KafkaProvider consumes raw reports from a Kafka topic. Each message value
// is one JSON-encoded RawReport. A fetch drains whatever is available within
// the poll window, up to maxBatch, so a quiet topic returns an empty batch
// instead of blocking the pipeline.
type KafkaProvider struct {
	reader   *kafka.Reader
	name     string
	maxBatch int
	poll     time.Duration
}

func NewKafkaProvider(brokers []string, topic, groupID string, maxBatch int, poll time.Duration) *KafkaProvider {
	if maxBatch <= 0 {
		maxBatch = 500
	}
	if poll <= 0 {
		poll = 5 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})

	return &KafkaProvider{
		reader:   reader,
		name:     "kafka:" + topic,
		maxBatch: maxBatch,
		poll:     poll,
	}
}

func (p *KafkaProvider) Name() string {
	return p.name
}

func (p *KafkaProvider) FetchReports(ctx context.Context) ([]domain.RawReport, error) {
	deadline, cancel := context.WithTimeout(ctx, p.poll)
	defer cancel()

	var reports []domain.RawReport
	for len(reports) < p.maxBatch {
		msg, err := p.reader.ReadMessage(deadline)
		if err != nil {
			// The poll window closing is the normal end of a batch.
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			return reports, fmt.Errorf("failed to read from %s: %w", p.name, err)
		}

		var raw domain.RawReport
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			log.Printf("⚠️  Skipping malformed message on %s at offset %d: %v", p.name, msg.Offset, err)
			continue
		}
		if raw.Source == "" {
			raw.Source = p.name
		}
		reports = append(reports, raw)
	}
	return reports, nil
}

func (p *KafkaProvider) Close() error {
	return p.reader.Close()
}
