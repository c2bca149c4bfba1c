package notifiers

import (
	"context"
	"fmt"

	"github.com/ilindan-dev/availability-notifier/internal/config"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

// ModeProduction enables the real channels. Any other mode routes everything to the LogNotifier.
const ModeProduction = "production"

// Router is a composite notifier that picks a channel per user from the user's contact info.
// It implements the Notifier interface itself.
type Router struct {
	email    Notifier
	telegram Notifier
	fallback Notifier
	logger   zerolog.Logger
}

// NewRouter creates a new Router and initializes channel-specific notifiers
// based on the application's configuration mode.
func NewRouter(cfg *config.Config, logger *zerolog.Logger) (*Router, error) {
	log := logger.With().Str("component", "notifier_router").Logger()
	log.Info().Str("mode", cfg.Notifiers.Mode).Msg("initializing notifiers")

	r := &Router{
		fallback: NewLogNotifier(logger),
		logger:   log,
	}

	if cfg.Notifiers.Mode != ModeProduction {
		return r, nil
	}

	if cfg.Notifiers.Email.Host != "" {
		r.email = NewEmailNotifier(cfg.Notifiers.Email, logger)
		log.Info().Msg("email notifier enabled")
	}
	if cfg.Notifiers.Telegram.BotToken != "" {
		tg, err := NewTelegramNotifier(cfg.Notifiers.Telegram, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram notifier: %w", err)
		}
		r.telegram = tg
		log.Info().Msg("telegram notifier enabled")
	}

	return r, nil
}

// Notify implements the Notifier interface by delegating to the selected channel.
func (r *Router) Notify(ctx context.Context, user model.AlertedUser, productID int64) error {
	channel, notifier := r.route(user)
	r.logger.Debug().Int64("user_id", user.UserID).Str("channel", string(channel)).Msg("routing notification")
	return notifier.Notify(ctx, user, productID)
}

// route prefers email, then telegram, then the log notifier.
func (r *Router) route(user model.AlertedUser) (Channel, Notifier) {
	switch {
	case r.email != nil && user.Contact.Email != "":
		return ChannelEmail, r.email
	case r.telegram != nil && user.Contact.TelegramChatID != 0:
		return ChannelTelegram, r.telegram
	default:
		return ChannelLog, r.fallback
	}
}
