//go:build integration

package sla

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"compliance/internal/grievance/models"
	"compliance/internal/platform/kafka"
	"compliance/internal/platform/kafka/producer"
	"compliance/pkg/platform/circuit"
	"compliance/pkg/testutil/containers"
)

func TestRedisTrackerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	redis := containers.GetManager().GetRedis(t)
	suite.Run(t, &trackerContract{newTracker: func(t *testing.T) Tracker {
		return NewRedisTracker(redis.Client(t), time.Hour)
	}})
}

type EscalationIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
	topic    string
}

func TestEscalationIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(EscalationIntegrationSuite))
}

func (s *EscalationIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	s.topic = "compliance.grievance.escalations"
	s.Require().NoError(s.kafka.CreateTopic(context.Background(), s.topic, 3))

	cfg := kafka.DefaultProducerConfig()
	cfg.Brokers = s.kafka.Brokers
	cfg.DeliveryTimeout = 10 * time.Second
	p, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.producer = p
}

func (s *EscalationIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

func (s *EscalationIntegrationSuite) TestSweepPublishesBreach() {
	ctx := context.Background()
	g := grievance(models.SeverityCritical)
	now := filedAt.Add(26 * time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	esc := NewResilientEscalator(
		NewKafkaEscalator(s.producer, s.topic),
		NewLogEscalator(logger),
		circuit.New("kafka_escalations"),
		logger,
	)
	s.Require().NoError(esc.Escalate(ctx, newEscalation(g, Classify(g, now), "", now)))

	rec := s.kafka.ReadKey(s.T(), s.topic, g.ID.String(), 15*time.Second)
	s.Require().NotNil(rec)

	var got Escalation
	s.Require().NoError(json.Unmarshal(rec.Value, &got))
	s.Equal(KindOverdueAck, got.Kind)
	s.Equal(26, got.ElapsedHours)
	s.Equal(g.PublicID, got.PublicID)

	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal("grievance.sla.OVERDUE_ACK", headers["event_type"])
	s.Equal("CRITICAL", headers["severity"])
}
