package notifiers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ilindan-dev/availability-notifier/internal/config"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	"github.com/rs/zerolog"
)

// botSender is the part of *tgbotapi.BotAPI the notifier needs.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends notifications via a Telegram bot.
type TelegramNotifier struct {
	bot    botSender
	logger zerolog.Logger
}

// NewTelegramNotifier creates a new instance of TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot api: %w", err)
	}
	return newTelegramNotifier(bot, logger), nil
}

func newTelegramNotifier(bot botSender, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:    bot,
		logger: logger.With().Str("component", "telegram_notifier").Logger(),
	}
}

// Notify implements the Notifier interface for Telegram.
func (n *TelegramNotifier) Notify(_ context.Context, user model.AlertedUser, productID int64) error {
	chatID := user.Contact.TelegramChatID
	if chatID == 0 {
		return &DeliveryError{Channel: ChannelTelegram, UserID: user.UserID, Reason: "user has no telegram chat"}
	}

	subject, body := productMessage(user, productID)
	// FullName comes from the directory and may contain Markdown control characters.
	text := fmt.Sprintf("*%s*\n\n%s",
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, subject),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, body),
	)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Int64("user_id", user.UserID).Msg("failed to send telegram message")
		return &DeliveryError{Channel: ChannelTelegram, UserID: user.UserID, Reason: "telegram send failed", Err: err}
	}

	n.logger.Info().Int64("user_id", user.UserID).Int64("chat_id", chatID).Msg("telegram message sent successfully")
	return nil
}
