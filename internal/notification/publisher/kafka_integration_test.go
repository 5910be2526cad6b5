//go:build integration

package publisher_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"hemogrid/internal/notification/models"
	"hemogrid/internal/notification/publisher"
	"hemogrid/internal/platform/config"
	"hemogrid/internal/platform/kafka"
	id "hemogrid/pkg/domain"
	"hemogrid/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
	client *kgo.Client
	topic  string
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	ctx := context.Background()
	s.broker = containers.GetManager().GetRedpanda(s.T())
	s.topic = "hemogrid.notifications.test"

	cfg := config.Default().Kafka
	cfg.Brokers = s.broker.Brokers
	cfg.NotificationTopic = s.topic

	var err error
	s.client, err = kafka.New(ctx, cfg)
	s.Require().NoError(err)
	s.Require().NoError(kafka.EnsureTopic(ctx, s.client, s.topic, 1, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, s.client, s.topic, 1, 1), "existing topic is not an error")
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *KafkaPublisherSuite) TestPublishWritesKeyedRecord() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := models.NewNotification(
		id.NotificationID(uuid.New()),
		id.UserID(uuid.New()),
		id.RequestID(uuid.New()),
		"Urgent: a high request needs 1 unit(s) of O- blood at East Ward.",
		time.Now().UTC(),
	)
	s.Require().NoError(err)
	s.Require().NoError(publisher.NewKafka(s.client, s.topic).Publish(ctx, n))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker.Brokers...),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var found *kgo.Record
	for found == nil && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		fetches.EachRecord(func(r *kgo.Record) {
			if string(r.Key) == n.RecipientID.String() {
				found = r
			}
		})
	}
	s.Require().NotNil(found, "record for recipient not consumed")

	var msg publisher.Message
	s.Require().NoError(json.Unmarshal(found.Value, &msg))
	s.Equal(n.ID.String(), msg.ID)
	s.Equal(n.RequestID.String(), msg.RequestID)
	s.Equal(n.Message, msg.Message)
}
