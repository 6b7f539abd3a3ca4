// Package kafka publishes notifications to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Config lists the brokers and the destination topic.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// MessageWriter is the subset of *kafkago.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes JSON payloads keyed by the caller's topic label.
type Publisher struct {
	writer MessageWriter
}

// New builds a Publisher backed by a kafka-go Writer.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	return NewWithWriter(&kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
	}), nil
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// Publish writes one message. Kafka assigns no id synchronously, so the
// returned id is the message key.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	key := messageKey(topic, payload)
	if err := p.writer.WriteMessages(ctx, kafkago.Message{Key: []byte(key), Value: data}); err != nil {
		return "", fmt.Errorf("write message: %w", err)
	}
	return key, nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

type keyed interface {
	MessageKey() string
}

func messageKey(topic string, payload any) string {
	if k, ok := payload.(keyed); ok {
		return k.MessageKey()
	}
	return topic
}
