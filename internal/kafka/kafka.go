// Package kafka streams ledger events through a Kafka topic keyed by
// aggregate id, so every change to one wallet or transaction lands on the
// same partition in commit order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"carteira/internal/events"
	"carteira/internal/log"
)

const headerEventType = "event_type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
	topic  string
	logger *log.Logger
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentKafka)
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Compression:  kafka.Snappy,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	}
	return &Publisher{writer: w, topic: topic, logger: logger}
}

// Publish writes e synchronously. The outbox relay owns retries, so a
// failed write is reported rather than buffered.
func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	msg, err := toMessage(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to %s: %w", e.ID, p.topic, err)
	}
	p.logger.DebugContext(ctx, "Published ledger event",
		log.FieldEventID, e.ID,
		log.FieldEventType, e.Type,
		"topic", p.topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Consumer reads the topic as part of a consumer group. Offsets are
// committed only after the handler succeeds.
type Consumer struct {
	reader     messageReader
	logger     *log.Logger
	maxRetries int
	retryDelay time.Duration
}

var _ events.Consumer = (*Consumer)(nil)

func NewConsumer(brokers []string, topic, groupID string, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return newConsumer(r, logger)
}

func newConsumer(r messageReader, logger *log.Logger) *Consumer {
	return &Consumer{
		reader:     r,
		logger:     logger.WithComponent(log.ComponentKafka),
		maxRetries: 5,
		retryDelay: time.Second,
	}
}

// Consume hands every message to h. A failing handler is retried with
// linear backoff; after maxRetries the message is logged and skipped so the
// partition keeps moving.
func (c *Consumer) Consume(ctx context.Context, h events.Handler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "Kafka read failed", log.FieldError, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
			continue
		}

		e, err := fromMessage(m)
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to decode message",
				"partition", m.Partition,
				"offset", m.Offset,
				log.FieldError, err)
		} else if err := c.handle(ctx, e, h); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "Dropping event after max retries",
				log.FieldEventID, e.ID,
				log.FieldEventType, e.Type,
				log.FieldMaxAttempts, c.maxRetries,
				log.FieldError, err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "Failed to commit offset",
				"offset", m.Offset,
				log.FieldError, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, e events.Event, h events.Handler) error {
	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err = h(ctx, e); err == nil {
			return nil
		}
		c.logger.WarnContext(ctx, "Event handler failed",
			log.FieldEventID, e.ID,
			log.FieldAttempt, attempt,
			log.FieldError, err)
		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.retryDelay):
		}
	}
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func toMessage(e events.Event) (kafka.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	return kafka.Message{
		Key:     []byte(e.AggregateID),
		Value:   body,
		Time:    e.OccurredAt,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(e.Type)}},
	}, nil
}

func fromMessage(m kafka.Message) (events.Event, error) {
	var e events.Event
	if err := json.Unmarshal(m.Value, &e); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return events.Event{}, errors.New("unmarshal event: missing id or type")
	}
	return e, nil
}
