package notifiers

import (
	"context"

	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

// LogNotifier is a mock notifier that implements the Notifier interface.
// It records the intent to notify instead of sending anything through a real channel.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a new instance of LogNotifier.
func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With().Str("component", "log_notifier").Logger(),
	}
}

// Notify implements the Notifier interface.
func (n *LogNotifier) Notify(_ context.Context, user model.AlertedUser, productID int64) error {
	n.logger.Info().
		Int64("user_id", user.UserID).
		Str("full_name", user.FullName).
		Int64("product_id", productID).
		Msg(">>> MOCK SEND: Sending an email to user")

	return nil
}
