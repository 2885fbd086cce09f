// Package events publishes delivery outcomes to RabbitMQ so downstream
// consumers (webhooks, analytics) can react without polling the log
// table. Publishing is optional and fire-and-forget: a broker outage
// never blocks or fails a send.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/mailgate/mailgate/internal/enum"
	"github.com/mailgate/mailgate/internal/logger"
	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
)

const (
	ExchangeMailgateDirect = "mailgate-direct"
	ExchangeDeadLetter     = "dead-letter"

	QueueDeliveryEvents = "delivery-events"
	DLQDeliveryEvents   = QueueDeliveryEvents + "-dlq"

	RoutingKeyDeadLetter  = "dead-letter"
	RoutingKeyEmailSent   = "email.sent"
	RoutingKeyEmailFailed = "email.failed"

	DefaultMessageTTL          = 240 * time.Hour // after TTL message moves to DLQ
	DefaultMaxRetries          = 3
	DefaultPublishTimeout      = 5 * time.Second
	DefaultReconnectBackoff    = time.Second
	DefaultMaxReconnectBackoff = 30 * time.Second
)

// Publisher is what the email pipeline depends on. NoopPublisher stands
// in when no broker is configured.
type Publisher interface {
	PublishDeliveryEvent(ctx context.Context, entry *models.EmailLog)
	Close() error
}

// DeliveryEvent is the wire payload for a terminal log entry.
type DeliveryEvent struct {
	ID          string           `json:"id"`
	LogID       string           `json:"logId"`
	DomainID    string           `json:"domainId"`
	TemplateKey string           `json:"templateKey"`
	ToEmail     string           `json:"toEmail"`
	Status      string           `json:"status"`
	MessageID   string           `json:"messageId,omitempty"`
	Error       string           `json:"error,omitempty"`
	MailerUsed  string           `json:"mailerUsed"`
	OccurredAt  string           `json:"occurredAt"`
	Metadata    DeliveryMetadata `json:"metadata"`
}

type DeliveryMetadata struct {
	UberTraceId string `json:"uberTraceId,omitempty"`
	RequestId   string `json:"requestId,omitempty"`
}

type PublisherConfig struct {
	MessageTTL          time.Duration
	MaxRetries          int
	PublishTimeout      time.Duration
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

type RabbitMQPublisher struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	publishChannel  *amqp091.Channel
	publishMutex    sync.Mutex
	url             string
	logger          logger.Logger
	confirms        chan amqp091.Confirmation
	config          PublisherConfig
}

func NewRabbitMQPublisher(rabbitmqURL string, logger logger.Logger, config *PublisherConfig) (*RabbitMQPublisher, error) {
	if config == nil {
		config = &PublisherConfig{
			MessageTTL:          DefaultMessageTTL,
			MaxRetries:          DefaultMaxRetries,
			PublishTimeout:      DefaultPublishTimeout,
			ReconnectBackoff:    DefaultReconnectBackoff,
			MaxReconnectBackoff: DefaultMaxReconnectBackoff,
		}
	}

	publisher := &RabbitMQPublisher{
		url:    rabbitmqURL,
		logger: logger,
		config: *config,
	}

	err := publisher.connect()
	if err != nil {
		return nil, err
	}

	return publisher, nil
}

// PublishDeliveryEvent emits the terminal outcome of a log entry.
// Failures are logged and swallowed; delivery state already lives in
// the database.
func (r *RabbitMQPublisher) PublishDeliveryEvent(ctx context.Context, entry *models.EmailLog) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishDeliveryEvent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("logId", entry.ID, "status", entry.Status)

	routingKey := RoutingKeyEmailFailed
	if entry.Status == enum.LogStatusSent {
		routingKey = RoutingKeyEmailSent
	}

	tracingData := tracing.ExtractTextMapCarrier(span.Context())

	event := DeliveryEvent{
		ID:          utils.GenerateNanoIDWithPrefix("evt", 21),
		LogID:       entry.ID,
		DomainID:    entry.DomainID,
		TemplateKey: entry.TemplateKey,
		ToEmail:     entry.ToEmail,
		Status:      entry.Status.String(),
		MessageID:   entry.MessageID,
		Error:       entry.ErrorMessage,
		MailerUsed:  entry.MailerUsed.String(),
		OccurredAt:  utils.Now().Format(time.RFC3339),
		Metadata: DeliveryMetadata{
			UberTraceId: tracingData["uber-trace-id"],
			RequestId:   utils.GetRequestIDFromContext(ctx),
		},
	}

	err := r.publishMessageOnExchange(ctx, event, ExchangeMailgateDirect, routingKey)
	if err != nil {
		tracing.TraceErr(span, err)
		r.logger.Errorf("Failed to publish delivery event for %s: %v", entry.ID, err)
	}
}

func (r *RabbitMQPublisher) setupPublishChannel() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "Failed to open publish channel")
	}

	// Enable publisher confirms
	err = channel.Confirm(false)
	if err != nil {
		channel.Close()
		return errors.Wrap(err, "Failed to enable publisher confirms")
	}

	r.confirms = channel.NotifyPublish(make(chan amqp091.Confirmation, 1))
	r.publishChannel = channel
	return nil
}

func (r *RabbitMQPublisher) handleReconnection() {
	backoff := r.config.ReconnectBackoff

	for {
		notifyClose := r.connection.NotifyClose(make(chan *amqp091.Error))
		err := <-notifyClose
		r.logger.Warnf("RabbitMQ connection closed: %v, attempting to reconnect", err)

		for {
			err := r.connect()
			if err == nil {
				r.logger.Info("Successfully reconnected to RabbitMQ")
				break
			}

			r.logger.Errorf("Failed to reconnect: %v, retrying in %v", err, backoff)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > r.config.MaxReconnectBackoff {
				backoff = r.config.MaxReconnectBackoff
			}
		}

		backoff = r.config.ReconnectBackoff
	}
}

func (r *RabbitMQPublisher) setupExchangesAndQueues() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "Failed to open channel for exchange/queue setup")
	}
	defer channel.Close()

	err = channel.ExchangeDeclare(
		ExchangeDeadLetter,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return errors.Wrap(err, "Failed to declare dead letter exchange")
	}

	err = channel.ExchangeDeclare(
		ExchangeMailgateDirect,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "Failed to declare mailgate-direct exchange")
	}

	err = r.declareQueueWithDLQ(channel, QueueDeliveryEvents, DLQDeliveryEvents)
	if err != nil {
		return err
	}

	// Both terminal outcomes land on the same queue
	for _, routingKey := range []string{RoutingKeyEmailSent, RoutingKeyEmailFailed} {
		err = channel.QueueBind(
			QueueDeliveryEvents,
			routingKey,
			ExchangeMailgateDirect,
			false,
			nil,
		)
		if err != nil {
			return errors.Wrapf(err, "Failed to bind queue %s to exchange %s", QueueDeliveryEvents, ExchangeMailgateDirect)
		}
	}

	return nil
}

func (r *RabbitMQPublisher) declareQueueWithDLQ(channel *amqp091.Channel, queueName string, dlqName string) error {
	_, err := channel.QueueDeclare(
		dlqName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to declare DLQ %s", dlqName)
	}

	err = channel.QueueBind(
		dlqName,
		RoutingKeyDeadLetter,
		ExchangeDeadLetter,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to bind DLQ %s to exchange", dlqName)
	}

	args := make(map[string]interface{})
	args["x-dead-letter-exchange"] = ExchangeDeadLetter
	args["x-dead-letter-routing-key"] = RoutingKeyDeadLetter
	args["x-message-ttl"] = int64(r.config.MessageTTL.Milliseconds())

	_, err = channel.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		args,
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to declare queue %s", queueName)
	}

	return nil
}

func (r *RabbitMQPublisher) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	r.connection, err = amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}

	err = r.setupExchangesAndQueues()
	if err != nil {
		return errors.Wrap(err, "Failed to setup exchanges and queues")
	}

	err = r.setupPublishChannel()
	if err != nil {
		return errors.Wrap(err, "Failed to setup publish channel")
	}

	go r.handleReconnection()

	return nil
}

func (r *RabbitMQPublisher) ensureConnectionAndChannel() error {
	if r.connection == nil || r.connection.IsClosed() {
		if err := r.connect(); err != nil {
			return errors.Wrap(err, "Failed to establish connection")
		}
	}

	if r.publishChannel == nil || r.publishChannel.IsClosed() {
		if err := r.setupPublishChannel(); err != nil {
			return errors.Wrap(err, "Failed to establish channel")
		}
	}

	return nil
}

func (r *RabbitMQPublisher) publishMessageOnExchange(ctx context.Context, message interface{}, exchange, routingKey string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishMessageOnExchange")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	tracing.LogObjectAsJson(span, "message", message)

	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		err := r.publishWithConfirm(ctx, message, exchange, routingKey)
		if err == nil {
			return nil
		}

		r.logger.Warnf("Publish attempt %d failed: %v", attempt+1, err)
		if attempt < r.config.MaxRetries-1 {
			time.Sleep(time.Millisecond * 100 * time.Duration(attempt+1))
		}
	}

	return errors.New("Failed to publish message after all retries")
}

func (r *RabbitMQPublisher) publishWithConfirm(ctx context.Context, message interface{}, exchange, routingKey string) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.ensureConnectionAndChannel(); err != nil {
		return err
	}

	jsonBody, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "Failed to marshal message")
	}

	err = r.publishChannel.Publish(
		exchange,
		routingKey,
		true,  // mandatory - ensure message is routed
		false, // immediate
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			Body:         jsonBody,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return errors.Wrap(err, "Failed to publish message")
	}

	// Wait for confirmation with timeout
	select {
	case confirm := <-r.confirms:
		if !confirm.Ack {
			return errors.New("Message was not confirmed by server")
		}
	case <-time.After(r.config.PublishTimeout):
		return errors.New("Publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// Close gracefully shuts down the publisher
func (r *RabbitMQPublisher) Close() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	if r.publishChannel != nil {
		err = r.publishChannel.Close()
		if err != nil {
			r.logger.Errorf("Error closing publish channel: %v", err)
		}
	}

	if r.connection != nil {
		if closeErr := r.connection.Close(); closeErr != nil {
			r.logger.Errorf("Error closing connection: %v", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}

	return err
}

// NoopPublisher is used when no broker URL is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishDeliveryEvent(ctx context.Context, entry *models.EmailLog) {}

func (NoopPublisher) Close() error { return nil }

var (
	_ Publisher = (*RabbitMQPublisher)(nil)
	_ Publisher = NoopPublisher{}
)
