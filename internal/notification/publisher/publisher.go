// Package publisher delivers persisted notifications to downstream channels.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"hemogrid/internal/notification/models"
)

// Message is the wire payload published for each notification.
type Message struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	RequestID   string    `json:"blood_request_id"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMessage(n *models.Notification) Message {
	return Message{
		ID:          n.ID.String(),
		RecipientID: n.RecipientID.String(),
		RequestID:   n.RequestID.String(),
		Message:     n.Message,
		CreatedAt:   n.CreatedAt,
	}
}

// Producer is the subset of *kgo.Client the Kafka publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes one record per notification, keyed by recipient so a
// recipient's notifications stay ordered within a partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafka(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, n *models.Notification) error {
	payload, err := json.Marshal(toMessage(n))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(n.RecipientID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte("blood_request.notification")},
		},
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce notification: %w", err)
	}
	return nil
}

// LogPublisher logs notifications instead of delivering them. Used when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, n *models.Notification) error {
	p.logger.DebugContext(ctx, "notification",
		"notification_id", n.ID,
		"recipient_id", n.RecipientID,
		"blood_request_id", n.RequestID,
	)
	return nil
}
