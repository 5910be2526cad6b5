package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"hemogrid/internal/notification/models"
	id "hemogrid/pkg/domain"
	"hemogrid/pkg/platform/circuit"
)

type recordingProducer struct {
	records []*kgo.Record
	err     error
}

func (p *recordingProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func testNotification() *models.Notification {
	return &models.Notification{
		ID:          id.NotificationID(uuid.New()),
		RecipientID: id.UserID(uuid.New()),
		RequestID:   id.RequestID(uuid.New()),
		Message:     "Urgent: O+ needed",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestKafkaPublisherKeysByRecipient(t *testing.T) {
	producer := &recordingProducer{}
	n := testNotification()

	err := NewKafka(producer, "notifications").Publish(context.Background(), n)
	require.NoError(t, err)
	require.Len(t, producer.records, 1)

	record := producer.records[0]
	assert.Equal(t, "notifications", record.Topic)
	assert.Equal(t, n.RecipientID.String(), string(record.Key))

	var msg Message
	require.NoError(t, json.Unmarshal(record.Value, &msg))
	assert.Equal(t, n.ID.String(), msg.ID)
	assert.Equal(t, n.RequestID.String(), msg.RequestID)
	assert.Equal(t, n.Message, msg.Message)
}

func TestKafkaPublisherSurfacesProduceError(t *testing.T) {
	producer := &recordingProducer{err: errors.New("broker down")}
	err := NewKafka(producer, "notifications").Publish(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestGuardedStopsCallingFailingBroker(t *testing.T) {
	producer := &recordingProducer{err: errors.New("broker down")}
	breaker := circuit.New("kafka", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	guarded := NewGuarded(NewKafka(producer, "notifications"), breaker, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.Error(t, guarded.Publish(ctx, testNotification()))
	require.Error(t, guarded.Publish(ctx, testNotification()))
	assert.True(t, breaker.IsOpen())

	err := guarded.Publish(ctx, testNotification())
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Len(t, producer.records, 2, "open circuit skips the broker")
}

func TestGuardedRecoversAfterCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	producer := &recordingProducer{err: errors.New("broker down")}
	breaker := circuit.New("kafka",
		circuit.WithFailureThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	guarded := NewGuarded(NewKafka(producer, "notifications"), breaker, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.Error(t, guarded.Publish(ctx, testNotification()))
	require.ErrorIs(t, guarded.Publish(ctx, testNotification()), ErrCircuitOpen)

	producer.err = nil
	now = now.Add(time.Minute)
	require.NoError(t, guarded.Publish(ctx, testNotification()))
	assert.False(t, breaker.IsOpen())
	assert.Len(t, producer.records, 2)
}
