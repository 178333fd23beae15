package events

import (
	"context"
	"errors"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/noah-isme/candle-checkout/internal/obs"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer bound to topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}
}

// KafkaPublisher writes events to a single Kafka topic. The event topic
// travels in the event_type header and the aggregate key drives partitioning.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher wraps w.
func NewKafkaPublisher(w MessageWriter) (*KafkaPublisher, error) {
	if w == nil {
		return nil, errors.New("events: kafka writer is required")
	}
	return &KafkaPublisher{writer: w}, nil
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: event.Payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Topic)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	err := p.writer.WriteMessages(ctx, msg)
	obs.CountEventPublished(event.Topic, err)
	return err
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if b := strings.TrimSpace(part); b != "" {
			out = append(out, b)
		}
	}
	return out
}
