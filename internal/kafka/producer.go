package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-ticket-issuance/internal/models"

	"github.com/segmentio/kafka-go"
)

const DefaultTicketIssuedTopic = "tickets.issued"

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{Writer: writer, Topic: topic}
}

// PublishTicketIssued streams the ticket issued event to Kafka
func (p *Producer) PublishTicketIssued(ctx context.Context, event models.TicketIssuedEvent) error {
	if event.Type == "" {
		event.Type = models.TicketIssuedEventType
	}

	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TicketID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, p.Topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
