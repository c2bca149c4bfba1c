package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ilindan-dev/availability-notifier/internal/config"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/availability-notifier/internal/domain/repository"
	"github.com/ilindan-dev/availability-notifier/internal/notifiers"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DispatchService turns one product-available event into one notification per alerted user.
// It holds no per-dispatch state and is safe for concurrent use.
type DispatchService struct {
	directory   repo.AlertDirectory
	notifier    notifiers.Notifier
	location    *time.Location
	maxParallel int
	now         func() time.Time
	logger      zerolog.Logger
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(
	directory repo.AlertDirectory,
	notifier notifiers.Notifier,
	cfg *config.Config,
	logger *zerolog.Logger,
) *DispatchService {
	return &DispatchService{
		directory:   directory,
		notifier:    notifier,
		location:    cfg.Dispatch.Location(),
		maxParallel: cfg.Dispatch.MaxParallel,
		now:         time.Now,
		logger:      logger.With().Str("layer", "service").Logger(),
	}
}

// Dispatch resolves the users alerting on the event's product and notifies each of them.
// It never returns an error: directory and delivery failures are recorded in the outcome.
func (s *DispatchService) Dispatch(ctx context.Context, event model.ProductAvailableEvent) *model.DispatchOutcome {
	started := s.now()
	query := model.NewAlertQuery(event, started.In(s.location))
	outcome := model.NewDispatchOutcome(query, started.UTC())

	log := s.logger.With().
		Stringer("dispatch_id", outcome.ID).
		Int64("product_id", query.ProductID).
		Str("available_on", query.AvailableOn.Format(model.DateLayout)).
		Logger()
	log.Info().Msg("product available event received")

	users, err := s.directory.Resolve(ctx, query)
	if err != nil {
		outcome.Status = model.DispatchQueryFailed
		outcome.QueryError = err.Error()
		log.Error().Err(err).Str("kind", queryErrorKind(err)).Msg("alert query failed, no users notified")
		return s.finish(outcome, log)
	}

	outcome.UsersResolved = len(users)
	if len(users) == 0 {
		outcome.Status = model.DispatchNoUsers
		log.Info().Msg("no users to notify for product")
		return s.finish(outcome, log)
	}

	reasons := s.notifyAll(ctx, users, query.ProductID, log)
	for i, reason := range reasons {
		if reason == "" {
			outcome.UsersNotified++
			continue
		}
		outcome.UsersFailed = append(outcome.UsersFailed, model.UserFailure{UserID: users[i].UserID, Reason: reason})
	}
	outcome.Status = model.DispatchCompleted

	return s.finish(outcome, log)
}

// notifyAll returns one failure reason per user, in resolved order; "" means delivered.
func (s *DispatchService) notifyAll(ctx context.Context, users []model.AlertedUser, productID int64, log zerolog.Logger) []string {
	reasons := make([]string, len(users))

	if s.maxParallel <= 1 {
		for i, u := range users {
			reasons[i] = s.notifyOne(ctx, u, productID, log)
		}
		return reasons
	}

	// Each goroutine owns reasons[i]; notifyOne never returns an error so siblings keep running.
	var g errgroup.Group
	g.SetLimit(s.maxParallel)
	for i, u := range users {
		i, u := i, u
		g.Go(func() error {
			reasons[i] = s.notifyOne(ctx, u, productID, log)
			return nil
		})
	}
	_ = g.Wait()
	return reasons
}

// notifyOne isolates a single delivery, including a panicking notifier.
func (s *DispatchService) notifyOne(ctx context.Context, user model.AlertedUser, productID int64, log zerolog.Logger) (reason string) {
	ulog := log.With().Int64("user_id", user.UserID).Logger()

	defer func() {
		if r := recover(); r != nil {
			reason = fmt.Sprintf("notifier panic: %v", r)
			ulog.Error().Str("reason", reason).Msg("notification failed")
		}
	}()

	if err := s.notifier.Notify(ctx, user, productID); err != nil {
		reason = failureReason(err)
		ulog.Warn().Err(err).Str("reason", reason).Msg("notification failed")
		return reason
	}

	ulog.Info().Msg("user notified")
	return ""
}

func (s *DispatchService) finish(outcome *model.DispatchOutcome, log zerolog.Logger) *model.DispatchOutcome {
	outcome.FinishedAt = s.now().UTC()

	level := zerolog.InfoLevel
	if outcome.Status == model.DispatchQueryFailed || len(outcome.UsersFailed) > 0 {
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).
		Str("status", string(outcome.Status)).
		Int("users_resolved", outcome.UsersResolved).
		Int("users_notified", outcome.UsersNotified).
		Int("users_failed", len(outcome.UsersFailed)).
		Dur("took", outcome.FinishedAt.Sub(outcome.StartedAt)).
		Msg("dispatch finished")

	return outcome
}

func failureReason(err error) string {
	var de *notifiers.DeliveryError
	if errors.As(err, &de) && de.Reason != "" {
		if de.Err != nil {
			return fmt.Sprintf("%s: %v", de.Reason, de.Err)
		}
		return de.Reason
	}
	return err.Error()
}

func queryErrorKind(err error) string {
	switch {
	case errors.Is(err, repo.ErrDirectoryUnavailable):
		return "directory_unavailable"
	case errors.Is(err, repo.ErrDirectoryProtocol):
		return "directory_protocol_error"
	default:
		return "unknown"
	}
}
