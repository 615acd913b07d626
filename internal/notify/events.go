package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// Event records the outcome of one dispatch attempt. Of the recipient it
// carries the domain only; the result text, which names the recipient, is
// never published.
type Event struct {
	ID              string    `json:"event_id"`
	Type            string    `json:"type"`
	Channel         string    `json:"channel"`
	Provider        string    `json:"provider,omitempty"`
	Success         bool      `json:"success"`
	Outcome         string    `json:"outcome"`
	RecipientDomain string    `json:"recipient_domain,omitempty"`
	EmittedAt       time.Time `json:"emitted_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events to a topic, retrying the write with
// exponential backoff for at most MaxElapsed.
type KafkaPublisher struct {
	Writer     messageWriter
	MaxElapsed time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, *kafka.Writer) {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{Writer: w, MaxElapsed: 2 * time.Second}, w
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{Key: []byte(e.ID), Value: payload}

	op := backoff.NewExponentialBackOff()
	op.InitialInterval = 50 * time.Millisecond
	op.MaxElapsedTime = p.MaxElapsed
	if op.MaxElapsedTime == 0 {
		op.MaxElapsedTime = 2 * time.Second
	}
	return backoff.Retry(func() error {
		return p.Writer.WriteMessages(ctx, msg)
	}, backoff.WithContext(op, ctx))
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
