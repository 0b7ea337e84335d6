// Package queue wraps the Kafka topics that decouple the API process from the
// worker: distillation jobs and best-effort audit events.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON messages to a single Kafka topic using segmentio/kafka-go.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a producer that writes to the given topic. Returns nil when
// brokers or topic are empty (queue disabled). Call Close when shutting down.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Producer{writer: writer, topic: topic}
}

// Publish serializes v as JSON and writes it to the topic. key is used for
// partitioning so messages for one lab stay ordered. Uses the request context
// with a short timeout so a slow broker does not block callers indefinitely.
func (p *Producer) Publish(ctx context.Context, key string, v any) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
