package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ilindan-dev/availability-notifier/internal/config"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/availability-notifier/internal/domain/repository"
	"github.com/ilindan-dev/availability-notifier/internal/events"
	"github.com/ilindan-dev/availability-notifier/internal/storage/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	// defaultWorkerCount is the default number of worker goroutines in the pool.
	defaultWorkerCount = 5
	defaultPrefetch    = 1
)

// ErrPoolStopped is returned by Start when every worker exited while the context was still live,
// for example after the broker closed the connection.
var ErrPoolStopped = errors.New("consumer: all workers stopped")

// channelOpener is the part of *amqp.Connection the workers need.
type channelOpener interface {
	Channel() (*amqp.Channel, error)
}

// Dispatcher runs the dispatch pipeline for one event.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.ProductAvailableEvent) *model.DispatchOutcome
}

// Consumer listens to the product-available queue and processes messages using a pool of workers.
type Consumer struct {
	logger      zerolog.Logger
	conn        channelOpener // Raw connection to create channels for each worker.
	dispatcher  Dispatcher
	outcomes    repo.OutcomeStore
	workerCount int
	prefetch    int
}

// New creates a new instance of Consumer.
func New(
	cfg *config.Config,
	logger *zerolog.Logger,
	conn *amqp.Connection,
	dispatcher Dispatcher,
	outcomes repo.OutcomeStore,
) *Consumer {
	workers := cfg.RabbitMQ.Workers
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	prefetch := cfg.RabbitMQ.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	c := &Consumer{
		logger:      logger.With().Str("component", "consumer").Logger(),
		dispatcher:  dispatcher,
		outcomes:    outcomes,
		workerCount: workers,
		prefetch:    prefetch,
	}
	if conn != nil {
		c.conn = conn
	}
	return c
}

// Start launches the worker pool to process messages from the queue.
// It blocks until the context is cancelled or every worker has stopped on its own,
// in which case it returns ErrPoolStopped.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().Int("count", c.workerCount).Msg("Starting worker pool")
	var wg sync.WaitGroup

	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.runWorker(ctx, workerID)
		}(i + 1)
	}

	wg.Wait()
	if ctx.Err() == nil {
		c.logger.Error().Msg("All workers stopped while the consumer was still running")
		return ErrPoolStopped
	}
	c.logger.Info().Msg("Consumer stopped")
	return nil
}

// runWorker contains the main logic for a single worker goroutine.
func (c *Consumer) runWorker(ctx context.Context, workerID int) {
	logger := c.logger.With().Int("worker_id", workerID).Logger()
	logger.Info().Msg("Worker started")

	ch, err := c.conn.Channel()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open channel for worker")
		return
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch); err != nil {
		logger.Error().Err(err).Msg("Failed to declare topology")
		return
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		logger.Error().Err(err).Msg("Failed to set QoS")
		return
	}

	msgs, err := ch.Consume(
		rabbitmq.ProductAvailableQueue,
		fmt.Sprintf("intake-worker-%d", workerID), // A unique consumer tag.
		false,                                     // autoAck: false. We will manually acknowledge messages.
		false,                                     // exclusive
		false,                                     // noLocal
		false,                                     // noWait
		nil,                                       // args
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register a consumer")
		return
	}

	logger.Info().Msg("Worker is waiting for messages")
	c.consume(ctx, msgs, logger)
}

// consume handles deliveries one at a time until the context ends or the channel closes.
func (c *Consumer) consume(ctx context.Context, msgs <-chan amqp.Delivery, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Worker stopping due to context cancellation")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Warn().Msg("Message channel closed by RabbitMQ, worker stopping")
				return
			}
			c.handleMessage(ctx, msg, logger)
		}
	}
}

// handleMessage processes a single message from the queue.
// Malformed messages are dead-lettered. A decoded event is acknowledged once dispatched,
// unless the worker was stopped mid-dispatch, in which case it goes back to the queue.
func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
	log := logger.With().Uint64("delivery_tag", msg.DeliveryTag).Str("message_id", msg.MessageId).Logger()

	event, err := events.Decode(msg.Body)
	if err != nil {
		log.Error().Err(err).Bool("redelivered", msg.Redelivered).Msg("Malformed event, rejecting")
		if nackErr := msg.Nack(false, false); nackErr != nil {
			log.Error().Err(nackErr).Msg("Failed to reject malformed message")
		}
		return
	}

	outcome := c.dispatcher.Dispatch(ctx, event)
	if ctx.Err() != nil {
		log.Warn().Stringer("dispatch_id", outcome.ID).Str("status", string(outcome.Status)).
			Msg("Worker stopped during dispatch, requeueing message")
		if nackErr := msg.Nack(false, true); nackErr != nil {
			log.Error().Err(nackErr).Msg("Failed to requeue message")
		}
		return
	}
	c.report(ctx, outcome, log)

	if err := msg.Ack(false); err != nil {
		log.Error().Err(err).Stringer("dispatch_id", outcome.ID).Msg("Failed to acknowledge message")
	}
}

// report surfaces an outcome to operators. Storage failures never fail the message.
func (c *Consumer) report(ctx context.Context, outcome *model.DispatchOutcome, log zerolog.Logger) {
	level := zerolog.InfoLevel
	if outcome.Status == model.DispatchQueryFailed || len(outcome.UsersFailed) > 0 {
		level = zerolog.WarnLevel
	}
	failed := zerolog.Arr()
	for _, f := range outcome.UsersFailed {
		failed.Dict(zerolog.Dict().Int64("user_id", f.UserID).Str("reason", f.Reason))
	}
	log.WithLevel(level).
		Stringer("dispatch_id", outcome.ID).
		Int64("product_id", outcome.ProductID).
		Str("status", string(outcome.Status)).
		Int("users_notified", outcome.UsersNotified).
		Array("users_failed", failed).
		Msg("Dispatch outcome")

	if c.outcomes == nil {
		return
	}
	if err := c.outcomes.Save(ctx, outcome); err != nil {
		log.Error().Err(err).Stringer("dispatch_id", outcome.ID).Msg("Failed to store dispatch outcome")
	}
}
