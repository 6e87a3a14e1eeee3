package queue

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/config"
)

// Message is one delivered queue message.
type Message struct {
	ID        string
	EventType string
	Body      []byte
}

// Handler processes one delivered batch. Returning an error makes the
// consumer retry the same batch in place; handlers must be idempotent.
type Handler func(ctx context.Context, msgs []Message) error

// Consumer delivers messages to a handler in bounded batches. Each handled
// batch is the analog of one external worker invocation: the worker resets
// its process-level caches at the top of every batch.
type Consumer struct {
	reader    *kafka.Reader
	logger    *zap.Logger
	batchSize int
	batchWait time.Duration
	retryWait time.Duration
}

func NewConsumer(cfg config.QueueConfig, topic string, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:    r,
		logger:    logger.With(zap.String("component", "queue-consumer"), zap.String("topic", topic)),
		batchSize: 10,
		batchWait: 250 * time.Millisecond,
		retryWait: time.Second,
	}
}

// Run consumes until the context is cancelled. A batch commits only after
// it succeeds, and nothing later commits before it: committing a newer
// offset would silently skip the failed messages.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		raw, err := c.fetchBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(raw) == 0 {
			continue
		}

		msgs := make([]Message, 0, len(raw))
		for _, m := range raw {
			msgs = append(msgs, Message{
				ID:        string(m.Key),
				EventType: headerValue(m, EventTypeHeader),
				Body:      m.Value,
			})
		}

		if err := c.handleWithRetry(ctx, msgs, handle); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, raw...); err != nil {
			c.logger.Error("Failed to commit batch", zap.Error(err))
		}
	}
}

// handleWithRetry runs the handler until it succeeds or the context ends,
// backing off between attempts. Handlers are idempotent, so re-running a
// partially completed batch converges.
func (c *Consumer) handleWithRetry(ctx context.Context, msgs []Message, handle Handler) error {
	const maxWait = 30 * time.Second

	wait := c.retryWait
	for {
		err := handle(ctx, msgs)
		if err == nil {
			return nil
		}

		c.logger.Error("Batch handling failed, retrying",
			zap.Int("count", len(msgs)),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if wait < maxWait {
			wait *= 2
		}
	}
}

// fetchBatch blocks for the first message, then drains whatever else
// arrives within the batch window, up to the batch size.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	batch := []kafka.Message{first}

	waitCtx, cancel := context.WithTimeout(ctx, c.batchWait)
	defer cancel()
	for len(batch) < c.batchSize {
		m, err := c.reader.FetchMessage(waitCtx)
		if err != nil {
			break
		}
		batch = append(batch, m)
	}

	return batch, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
