package app

import (
	"context"
	"net/http"

	"github.com/ilindan-dev/availability-notifier/internal/config"
	"github.com/ilindan-dev/availability-notifier/internal/consumer"
	deliveryHTTP "github.com/ilindan-dev/availability-notifier/internal/delivery/http"
	"github.com/ilindan-dev/availability-notifier/internal/directory"
	repo "github.com/ilindan-dev/availability-notifier/internal/domain/repository"
	"github.com/ilindan-dev/availability-notifier/internal/logger"
	"github.com/ilindan-dev/availability-notifier/internal/notifiers"
	"github.com/ilindan-dev/availability-notifier/internal/service"
	"github.com/ilindan-dev/availability-notifier/internal/storage/rabbitmq"
	"github.com/ilindan-dev/availability-notifier/internal/storage/redis"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// CommonModule provides dependencies that are shared between the API and Worker applications.
var CommonModule = fx.Options(
	fx.Provide(
		// Core components
		config.NewConfig,
		logger.NewLogger,

		// Storage Layer - concrete implementations
		redis.NewClient,
		rabbitmq.NewConnection,
		fx.Annotate(redis.NewOutcomeStore, fx.As(new(repo.OutcomeStore))),
	),

	fx.Invoke(func(conn *amqp.Connection, client *goredis.Client, lc fx.Lifecycle, logger *zerolog.Logger) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if err := client.Close(); err != nil {
					logger.Error().Err(err).Msg("failed to close redis client")
				}
				return conn.Close()
			},
		})
	}),
)

// APIModule defines the Fx module for the HTTP API application.
var APIModule = fx.Options(
	CommonModule, // Include all shared components
	fx.Provide(
		// API-specific components
		rabbitmq.NewEventPublisher,
		func(p *rabbitmq.EventPublisher) repo.EventPublisher { return p },
		deliveryHTTP.NewHandlers,
		deliveryHTTP.NewServer,
	),

	fx.Invoke(func(server *deliveryHTTP.Server, publisher *rabbitmq.EventPublisher, lc fx.Lifecycle) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						panic(err)
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				if err := server.Shutdown(ctx); err != nil {
					return err
				}
				return publisher.Close()
			},
		})
	}),
)

// WorkerModule defines the Fx module for the Event Intake worker application.
var WorkerModule = fx.Options(
	CommonModule, // Include all shared components
	fx.Provide(
		// Worker-specific components
		fx.Annotate(directory.NewClient, fx.As(new(repo.AlertDirectory))),
		fx.Annotate(notifiers.NewRouter, fx.As(new(notifiers.Notifier))),
		fx.Annotate(service.NewDispatchService, fx.As(new(consumer.Dispatcher))),
		consumer.New,
	),
	fx.Invoke(func(c *consumer.Consumer, lc fx.Lifecycle, shutdowner fx.Shutdowner, logger *zerolog.Logger) {
		// The start context expires once startup finishes, so the pool gets its own.
		runCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					defer close(done)
					if err := c.Start(runCtx); err != nil {
						// Nothing is consuming any more; exit so the process gets restarted.
						logger.Error().Err(err).Msg("worker pool stopped, shutting down")
						if sdErr := shutdowner.Shutdown(fx.ExitCode(1)); sdErr != nil {
							logger.Error().Err(sdErr).Msg("failed to request shutdown")
						}
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
	}),
)
