package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/availability-notifier/internal/config"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/availability-notifier/internal/domain/repository"
	"github.com/ilindan-dev/availability-notifier/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Ensure OutcomeStore implements the interface
var _ repo.OutcomeStore = (*OutcomeStore)(nil)

const defaultOutcomeTTL = 24 * time.Hour

// cachedFailure and cachedOutcome are the JSON shape kept in Redis.
type cachedFailure struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

type cachedOutcome struct {
	ID            uuid.UUID       `json:"id"`
	ProductID     int64           `json:"product_id"`
	AvailableOn   string          `json:"available_on"`
	Status        string          `json:"status"`
	UsersResolved int             `json:"users_resolved"`
	UsersNotified int             `json:"users_notified"`
	UsersFailed   []cachedFailure `json:"users_failed"`
	QueryError    string          `json:"query_error,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
}

// OutcomeStore keeps the latest DispatchOutcome per product in Redis for a limited time.
type OutcomeStore struct {
	redis  *goredis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewOutcomeStore creates a new instance of the OutcomeStore.
func NewOutcomeStore(cfg *config.Config, logger *zerolog.Logger, redis *goredis.Client) *OutcomeStore {
	ttl := cfg.Redis.OutcomeTTL
	if ttl <= 0 {
		ttl = defaultOutcomeTTL
	}
	return &OutcomeStore{
		redis:  redis,
		ttl:    ttl,
		logger: logger.With().Str("layer", "redis_outcome_store").Logger(),
	}
}

// Save overwrites the latest outcome of the outcome's product.
func (s *OutcomeStore) Save(ctx context.Context, o *model.DispatchOutcome) error {
	key := keybuilder.RedisLatestDispatchKeyBuild(o.ProductID)
	data, err := json.Marshal(toCached(o))
	if err != nil {
		s.logger.Error().Err(err).Stringer("dispatch_id", o.ID).Msg("failed to marshal dispatch outcome")
		return fmt.Errorf("failed to marshal dispatch outcome: %w", err)
	}

	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to set key in redis")
		return err
	}

	s.logger.Debug().Str("key", key).Stringer("dispatch_id", o.ID).Msg("dispatch outcome stored")
	return nil
}

// Latest returns the most recent outcome for a product or repo.ErrNotFound.
func (s *OutcomeStore) Latest(ctx context.Context, productID int64) (*model.DispatchOutcome, error) {
	key := keybuilder.RedisLatestDispatchKeyBuild(productID)
	val, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repo.ErrNotFound
		}
		s.logger.Error().Err(err).Str("key", key).Msg("failed to get key from redis")
		return nil, err
	}

	var cached cachedOutcome
	if err := json.Unmarshal(val, &cached); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to unmarshal dispatch outcome")
		return nil, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return fromCached(cached)
}

func toCached(o *model.DispatchOutcome) cachedOutcome {
	failed := make([]cachedFailure, 0, len(o.UsersFailed))
	for _, f := range o.UsersFailed {
		failed = append(failed, cachedFailure{UserID: f.UserID, Reason: f.Reason})
	}
	return cachedOutcome{
		ID:            o.ID,
		ProductID:     o.ProductID,
		AvailableOn:   o.AvailableOn.Format(model.DateLayout),
		Status:        string(o.Status),
		UsersResolved: o.UsersResolved,
		UsersNotified: o.UsersNotified,
		UsersFailed:   failed,
		QueryError:    o.QueryError,
		StartedAt:     o.StartedAt,
		FinishedAt:    o.FinishedAt,
	}
}

func fromCached(c cachedOutcome) (*model.DispatchOutcome, error) {
	on, err := time.Parse(model.DateLayout, c.AvailableOn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cached available_on: %w", err)
	}
	failed := make([]model.UserFailure, 0, len(c.UsersFailed))
	for _, f := range c.UsersFailed {
		failed = append(failed, model.UserFailure{UserID: f.UserID, Reason: f.Reason})
	}
	return &model.DispatchOutcome{
		ID:            c.ID,
		ProductID:     c.ProductID,
		AvailableOn:   on,
		Status:        model.DispatchStatus(c.Status),
		UsersResolved: c.UsersResolved,
		UsersNotified: c.UsersNotified,
		UsersFailed:   failed,
		QueryError:    c.QueryError,
		StartedAt:     c.StartedAt,
		FinishedAt:    c.FinishedAt,
	}, nil
}
