package events

import (
	"encoding/json"
	"fmt"
	"time"

	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Publisher emits session lifecycle events to the platform's event exchange.
type Publisher interface {
	PublishSessionEvent(event *models.SessionEventMessage) error
}

type publisher struct {
	channel *amqp.Channel
	cfg     *config.RabbitMQConfig
}

func NewPublisher(channel *amqp.Channel, cfg *config.Configuration) Publisher {
	return &publisher{
		channel: channel,
		cfg:     &cfg.Queue.RabbitMQ,
	}
}

func (p *publisher) PublishSessionEvent(event *models.SessionEventMessage) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	err = p.channel.Publish(
		p.cfg.Exchange,
		event.Event,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   event.Timestamp,
		},
	)

	if err != nil {
		logrus.WithError(err).WithField("event", event.Event).Error("Failed to publish session event")
		return fmt.Errorf("failed to publish session event: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"event":      event.Event,
		"session_id": event.SessionID,
		"user_id":    event.UserID,
		"problem_id": event.ProblemID,
		"exchange":   p.cfg.Exchange,
	}).Debug("Session event published")

	return nil
}
