package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/segmentio/kafka-go"
)

const maxHandlerBackoff = 10 * time.Second

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	log     *slog.Logger
	backoff time.Duration
}

func NewConsumer(brokers []string, groupID, topic string, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		log:     log.With("topic", topic),
		backoff: 500 * time.Millisecond,
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume hands every message to handler and commits its offset only once the
// handler is done with it. Transient handler errors are retried with backoff
// until they succeed or ctx ends; any other error is logged and the message skipped.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if err := c.handle(ctx, msg, handler); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(context.Context, kafka.Message) error) error {
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			c.log.ErrorContext(ctx, "dropping kafka message", "offset", msg.Offset, "key", string(msg.Key), "error", err)
			return nil
		}

		wait := time.Duration(attempt) * c.backoff
		if wait > maxHandlerBackoff {
			wait = maxHandlerBackoff
		}
		c.log.WarnContext(ctx, "kafka handler failed, retrying", "offset", msg.Offset, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
