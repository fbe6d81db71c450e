package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const DefaultTopic = "invoices.invalidated"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Invalidated is published every time a cached page stops being current.
type Invalidated struct {
	Path          string    `json:"path"`
	InvalidatedAt time.Time `json:"invalidated_at"`
}

type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// Invalidations are written one at a time on the request path, so the writer
// flushes every message at once instead of waiting for a batch to fill.
const (
	batchSize    = 1
	batchTimeout = 10 * time.Millisecond
	writeTimeout = 2 * time.Second
)

func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchSize:              batchSize,
			BatchTimeout:           batchTimeout,
			WriteTimeout:           writeTimeout,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				logger.Sugar().Errorf(msg, args...)
			}),
		},
		now: time.Now,
	}
}

func newPublisherWithWriter(w messageWriter, now func() time.Time) *Publisher {
	return &Publisher{writer: w, now: now}
}

/* Publishes an Invalidated event keyed by the path, so every event of a path lands on the same partition. */
func (p *Publisher) Invalidate(ctx context.Context, path string) error {
	data, err := json.Marshal(Invalidated{Path: path, InvalidatedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding invalidation of %s: %w", path, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(path),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("publishing invalidation of %s: %w", path, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
