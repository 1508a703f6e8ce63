//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"census/internal/citizens/events"
	"census/internal/citizens/models"
	"census/internal/platform/config"
	"census/internal/platform/kafka"
	id "census/pkg/domain"
	"census/pkg/testutil/containers"
)

type PublisherSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	client   *kgo.Client
	cfg      config.KafkaConfig
}

func TestPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupSuite() {
	ctx := context.Background()
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	s.cfg = config.KafkaConfig{
		Brokers:           s.redpanda.Brokers,
		Topic:             "census.citizens.test",
		ClientID:          "census-test",
		Partitions:        1,
		ReplicationFactor: 1,
	}

	client, err := kafka.New(ctx, s.cfg)
	s.Require().NoError(err)
	s.client = client
	s.Require().NoError(kafka.EnsureTopic(ctx, client, s.cfg))
	s.Require().NoError(kafka.EnsureTopic(ctx, client, s.cfg), "existing topic is not an error")
}

func (s *PublisherSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *PublisherSuite) TestPublishedEventIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	citizenID := id.CitizenID(101)
	publisher := events.NewPublisher(s.client, s.cfg.Topic)
	err := publisher.Publish(ctx, models.Event{
		Type:       models.EventCitizenUpdated,
		ImportID:   7,
		CitizenID:  &citizenID,
		OccurredAt: time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)

	consumer := s.redpanda.NewConsumer(s.T(), s.cfg.Topic)
	var record *kgo.Record
	for record == nil {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for event")
		fetches.EachRecord(func(r *kgo.Record) {
			if record == nil {
				record = r
			}
		})
	}

	s.Equal("7", string(record.Key))
	s.Require().Len(record.Headers, 1)
	s.Equal("citizen.updated", string(record.Headers[0].Value))

	var decoded map[string]any
	s.Require().NoError(json.Unmarshal(record.Value, &decoded))
	s.Equal("citizen.updated", decoded["type"])
	s.InDelta(7, decoded["import_id"], 0)
	s.InDelta(101, decoded["citizen_id"], 0)
}
