package notifiers

import (
	"context"

	"github.com/ilindan-dev/availability-notifier/internal/config"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// mailDialer is the part of *gomail.Dialer the notifier needs.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier sends notifications via SMTP.
type EmailNotifier struct {
	dialer mailDialer
	from   string
	logger zerolog.Logger
}

// NewEmailNotifier creates a new instance of EmailNotifier.
func NewEmailNotifier(cfg config.EmailConfig, logger *zerolog.Logger) *EmailNotifier {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return newEmailNotifier(d, cfg.From, logger)
}

func newEmailNotifier(d mailDialer, from string, logger *zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		dialer: d,
		from:   from,
		logger: logger.With().Str("component", "email_notifier").Logger(),
	}
}

// Notify implements the Notifier interface for email.
func (n *EmailNotifier) Notify(_ context.Context, user model.AlertedUser, productID int64) error {
	if user.Contact.Email == "" {
		return &DeliveryError{Channel: ChannelEmail, UserID: user.UserID, Reason: "user has no email address"}
	}

	subject, body := productMessage(user, productID)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetAddressHeader("To", user.Contact.Email, user.FullName)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	// DialAndSend opens a connection, sends the email, and closes it.
	if err := n.dialer.DialAndSend(m); err != nil {
		n.logger.Error().Err(err).Int64("user_id", user.UserID).Int64("product_id", productID).Msg("failed to send email")
		return &DeliveryError{Channel: ChannelEmail, UserID: user.UserID, Reason: "smtp send failed", Err: err}
	}

	n.logger.Info().Int64("user_id", user.UserID).Str("recipient", user.Contact.Email).Msg("email sent successfully")
	return nil
}
