package services

import (
	"github.com/mailgate/mailgate/internal/logger"
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/services/email"
	"github.com/mailgate/mailgate/services/events"
	"github.com/mailgate/mailgate/services/ratelimit"
	"github.com/mailgate/mailgate/services/transport"
)

type Services struct {
	EmailService     *email.Service
	RateLimitService *ratelimit.Service
	TransportService *transport.Service
	EventsPublisher  events.Publisher
}

func InitServices(rabbitmqURL string, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	// delivery events are optional; without a broker the publisher is a no-op
	var publisher events.Publisher = events.NoopPublisher{}
	if rabbitmqURL != "" {
		publisherConfig := &events.PublisherConfig{
			MessageTTL:          events.DefaultMessageTTL,
			MaxRetries:          events.DefaultMaxRetries,
			PublishTimeout:      events.DefaultPublishTimeout,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		}
		rabbitPublisher, err := events.NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
		if err != nil {
			return nil, err
		}
		publisher = rabbitPublisher
	}

	rateLimitService := ratelimit.NewService(repos.EmailLogRepository)
	transportService := transport.NewService()

	services := Services{
		EmailService: email.NewService(
			repos.TemplateRepository,
			repos.EmailLogRepository,
			rateLimitService,
			transportService,
			publisher,
		),
		RateLimitService: rateLimitService,
		TransportService: transportService,
		EventsPublisher:  publisher,
	}

	return &services, nil
}
