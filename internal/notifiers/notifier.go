package notifiers

import (
	"context"
	"fmt"

	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
)

// Channel names a delivery mechanism.
type Channel string

const (
	ChannelLog      Channel = "log"
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
)

// Notifier defines the interface for any notification sending service.
// This allows us to easily swap or add new notification channels (e.g., SMS, push).
// Implementations must be safe for concurrent use and must not share mutable state between calls.
type Notifier interface {
	// Notify tells one user that the product is available again.
	Notify(ctx context.Context, user model.AlertedUser, productID int64) error
}

// DeliveryError is returned by notifiers when a single delivery fails.
type DeliveryError struct {
	Channel Channel
	UserID  int64
	Reason  string
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s delivery to user %d failed: %s: %v", e.Channel, e.UserID, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s delivery to user %d failed: %s", e.Channel, e.UserID, e.Reason)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// productMessage builds the subject and body shared by all real channels.
func productMessage(user model.AlertedUser, productID int64) (subject, body string) {
	subject = fmt.Sprintf("Product %d is available", productID)
	name := user.FullName
	if name == "" {
		name = "there"
	}
	body = fmt.Sprintf("Hi %s,\n\nthe product %d you set an alert for is available again.", name, productID)
	return subject, body
}
