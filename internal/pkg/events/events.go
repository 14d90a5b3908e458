// Package events publishes order lifecycle changes to Kafka for downstream
// consumers (analytics, support tooling).
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TransitionEvent is the message value written for every order state change.
type TransitionEvent struct {
	OrderID    string    `json:"order_id"`
	Code       string    `json:"code"`
	UserID     string    `json:"user_id"`
	ReportType string    `json:"report_type"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Reason     string    `json:"reason,omitempty"`
	Attempt    int       `json:"attempt"`
	At         time.Time `json:"at"`
}

// Publisher emits order transition events. Publishing is best effort.
type Publisher interface {
	PublishTransition(ctx context.Context, evt TransitionEvent) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
}

// LoadConfig reads KAFKA_BROKERS (comma separated) and KAFKA_ORDER_EVENTS_TOPIC.
func LoadConfig() Config {
	var brokers []string
	for _, b := range strings.Split(env.GetEnv("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return Config{
		Brokers: brokers,
		Topic:   env.GetEnv("KAFKA_ORDER_EVENTS_TOPIC", "order-events"),
	}
}

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers are configured.
func NewPublisher(cfg Config) Publisher {
	if len(cfg.Brokers) == 0 {
		log.Info("[Events] KAFKA_BROKERS not set, order events are not published")
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg)
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) PublishTransition(ctx context.Context, evt TransitionEvent) error {
	msg, err := buildMessage(ctx, evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// buildMessage keys by order id so all events of one order land on one partition.
func buildMessage(ctx context.Context, evt TransitionEvent) (kafka.Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, err
	}
	carrier := headerCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	return kafka.Message{
		Key:     []byte(evt.OrderID),
		Value:   value,
		Headers: carrier,
		Time:    evt.At,
	}, nil
}

// headerCarrier adapts Kafka headers to propagation.TextMapCarrier.
type headerCarrier []kafka.Header

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishTransition(context.Context, TransitionEvent) error { return nil }
func (NoopPublisher) Close() error                                            { return nil }
