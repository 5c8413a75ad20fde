package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/vedit/internal/config"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

const (
	ExchangeName = "vedit.events"

	RoutingKeyStarted   = "export.started"
	RoutingKeyCompleted = "export.completed"
	RoutingKeyFailed    = "export.failed"
	RoutingKeyCancelled = "export.cancelled"

	publishTimeout = 5 * time.Second
)

// publisher is the part of an AMQP channel the publisher needs.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher announces export lifecycle events on a topic exchange.
type Publisher struct {
	conn    *amqp.Connection
	channel publisher
	logger  *logging.Logger
	now     func() time.Time

	mu   sync.Mutex
	seen map[string]models.JobStatus
}

// New connects to RabbitMQ and declares the events exchange
func New(cfg config.QueueConfig, logger *logging.Logger) (*Publisher, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := newPublisher(channel, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch publisher, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		channel: ch,
		logger:  logger,
		now:     time.Now,
		seen:    make(map[string]models.JobStatus),
	}
}

// Close closes the queue connection
func (p *Publisher) Close() error {
	if ch, ok := p.channel.(*amqp.Channel); ok && ch != nil {
		ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Publish sends one event
func (p *Publisher) Publish(ctx context.Context, routingKey string, event models.JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    event.JobID + "." + event.Event,
			Body:         body,
			Timestamp:    event.Timestamp,
		},
	)
	p.mu.Unlock()
	metrics.RecordEventPublished(routingKey, err)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// JobUpdated publishes when a job starts processing or reaches a terminal
// status. Each transition is published once.
func (p *Publisher) JobUpdated(job *models.ExportJob) {
	p.mu.Lock()
	prev, known := p.seen[job.ID]
	if known && prev == job.Status {
		p.mu.Unlock()
		return
	}
	p.seen[job.ID] = job.Status
	p.mu.Unlock()

	key, ok := routingKey(job.Status)
	if !ok {
		return
	}
	event := models.JobEvent{
		Event:      key,
		JobID:      job.ID,
		Status:     job.Status,
		Title:      job.Metadata.Title,
		OutputPath: job.OutputPath,
		Error:      job.Error,
		Timestamp:  p.now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, key, event); err != nil {
		p.logger.WithJobID(job.ID).WarnWithErr("Failed to publish job event", err)
	}
}

func routingKey(status models.JobStatus) (string, bool) {
	switch status {
	case models.JobStatusProcessing:
		return RoutingKeyStarted, true
	case models.JobStatusCompleted:
		return RoutingKeyCompleted, true
	case models.JobStatusFailed:
		return RoutingKeyFailed, true
	case models.JobStatusCancelled:
		return RoutingKeyCancelled, true
	default:
		return "", false
	}
}
