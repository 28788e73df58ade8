package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/core/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes domain events to Kafka as JSON, with the event metadata
// in headers and the trace context propagated alongside.
type Publisher struct {
	writer messageWriter
	source string
	logger *zap.Logger
}

func NewPublisher(brokers []string, topic, source string, logger *zap.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newPublisher(writer, source, logger)
}

func newPublisher(writer messageWriter, source string, logger *zap.Logger) *Publisher {
	return &Publisher{writer: writer, source: source, logger: logger}
}

// PublishEvent sends one event. The writer is bound to the configured topic;
// topic is used for logging and error context.
func (p *Publisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "ce-source", Value: []byte(p.source)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if de, ok := event.(domain.DomainEvent); ok {
		msg.Headers = append(msg.Headers,
			kafka.Header{Key: "ce-id", Value: []byte(de.EventID())},
			kafka.Header{Key: "ce-type", Value: []byte(de.EventType())},
			kafka.Header{Key: "ce-time", Value: []byte(de.OccurredOn().Format(time.RFC3339Nano))},
		)
		msg.Time = de.OccurredOn()
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}

	p.logger.Debug("event published", zap.String("topic", topic), zap.String("key", key))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// headerCarrier adapts kafka headers to the otel TextMapCarrier interface.
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}
