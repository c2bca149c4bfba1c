package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/availability-notifier/internal/domain/repository"
	"github.com/ilindan-dev/availability-notifier/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Ensure EventPublisher implements the repository interface at compile time.
var _ repo.EventPublisher = (*EventPublisher)(nil)

// publishChannel is the part of *amqp.Channel the publisher needs.
type publishChannel interface {
	Declarer
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// EventPublisher publishes product-available events to the products exchange.
type EventPublisher struct {
	mu     sync.Mutex // amqp channels are not safe for concurrent publishing
	ch     publishChannel
	logger zerolog.Logger
}

// NewEventPublisher opens a channel on the shared connection and declares the topology.
func NewEventPublisher(conn *amqp.Connection, logger *zerolog.Logger) (*EventPublisher, error) {
	channel, err := conn.Channel()
	if err != nil {
		logger.Error().Err(err).Msg("storage: rabbitMQ: New: Failed to open a channel")
		return nil, fmt.Errorf("storage: rabbitMQ: New: Failed to open a channel: %w", err)
	}
	return newEventPublisher(channel, logger)
}

func newEventPublisher(ch publishChannel, logger *zerolog.Logger) (*EventPublisher, error) {
	p := &EventPublisher{
		ch:     ch,
		logger: logger.With().Str("component", "rabbitmq_publisher").Logger(),
	}

	p.logger.Info().Msg("setting up rabbitmq topology")
	if err := DeclareTopology(ch); err != nil {
		p.logger.Error().Err(err).Msg("storage: rabbitMQ: New: Failed to setup topology")
		return nil, fmt.Errorf("storage: rabbitMQ: New: Failed to setup topology: %w", err)
	}
	p.logger.Info().Msg("rabbitmq topology setup successful")

	return p, nil
}

// Publish sends a product-available event as a persistent message.
func (p *EventPublisher) Publish(ctx context.Context, e model.ProductAvailableEvent) error {
	body, err := events.Encode(e)
	if err != nil {
		p.logger.Error().Err(err).Int64("product_id", e.ProductID).Msg("failed to marshal event")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  events.ContentType,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, ProductsExchange, ProductAvailableRoutingKey, false, false, msg); err != nil {
		p.logger.Error().Err(err).Int64("product_id", e.ProductID).Msg("failed to publish event")
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info().Int64("product_id", e.ProductID).Str("message_id", msg.MessageId).Msg("product available event published")
	return nil
}

// Close gracefully shuts down the channel. The connection is managed by Fx.
func (p *EventPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}
