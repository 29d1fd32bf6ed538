//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"guide_sync/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) Config {
	return Config{
		URL:        s.amqpURL,
		Exchange:   "guides-" + name,
		RoutingKey: "guides-" + name,
		QueueName:  "guide-changes-" + name,
	}
}

func (s *RabbitMQIntegrationSuite) TestConnectAndClose() {
	pub, err := NewRabbitMQ(s.config("connect"), s.logger)
	s.Require().NoError(err)
	s.NoError(pub.Close())
}

func (s *RabbitMQIntegrationSuite) TestPublishEvents() {
	cfg := s.config("events")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	guide := &domain.Guide{
		ID:          1,
		ExternalID:  123,
		Title:       "Reset a password",
		Body:        `<div class="guide-description">Steps</div>`,
		Status:      domain.StatusPublish,
		CategoryIDs: []int64{4, 5},
	}

	for _, action := range []domain.GuideAction{domain.ActionCreate, domain.ActionUpdate, domain.ActionDelete} {
		s.Require().NoError(pub.Publish(s.ctx, action, guide))

		msg := s.consumeMessage(cfg)
		s.Require().NotNil(msg)
		s.Equal("application/json", msg.ContentType)
		s.Equal("guide."+string(action), msg.Type)
		s.NotEmpty(msg.MessageId)
		s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

		var received GuideMessage
		s.Require().NoError(json.Unmarshal(msg.Body, &received))
		s.Equal(action, received.Action)
		s.Equal(int64(123), received.Guide.ExternalID)
		s.Equal("Reset a password", received.Guide.Title)
		s.Equal([]int64{4, 5}, received.Guide.CategoryIDs)
		s.False(received.Timestamp.IsZero())
	}
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
