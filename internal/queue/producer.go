package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/config"
)

// EventTypeHeader carries the dispatch-table key for a message.
const EventTypeHeader = "eventType"

// Entry is one queue message to be sent. ID is deterministic per planned
// batch so redelivered submissions collapse onto the same work.
type Entry struct {
	ID        string
	EventType string
	Body      []byte
}

// BatchSender submits a set of entries as one queue-batch-send call.
type BatchSender interface {
	SendBatch(ctx context.Context, entries []Entry) error
}

// Producer publishes entries to a Kafka topic, carrying the event type as a
// message header.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(cfg config.QueueConfig, topic string, logger *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &Producer{
		writer: w,
		logger: logger.With(zap.String("component", "queue-producer"), zap.String("topic", topic)),
	}
}

// SendBatch writes all entries in a single produce call. A partial broker
// rejection surfaces as an error for the whole call; retry is the caller's
// responsibility and is safe because consumers are idempotent.
func (p *Producer) SendBatch(ctx context.Context, entries []Entry) error {
	messages := make([]kafka.Message, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, kafka.Message{
			Key:   []byte(e.ID),
			Value: e.Body,
			Headers: []kafka.Header{
				{Key: EventTypeHeader, Value: []byte(e.EventType)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("Failed to send batch",
			zap.Int("count", len(messages)),
			zap.Error(err))
		return fmt.Errorf("failed to send queue batch: %w", err)
	}

	p.logger.Debug("Batch sent", zap.Int("count", len(messages)))
	return nil
}

// Send writes a single entry.
func (p *Producer) Send(ctx context.Context, entry Entry) error {
	return p.SendBatch(ctx, []Entry{entry})
}

// Close flushes pending writes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
