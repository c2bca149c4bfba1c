// Package events holds the wire format of the product-available message.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/availability-notifier/internal/domain/repository"
)

// ContentType is the content type of encoded product-available messages.
const ContentType = "application/json"

// ProductAvailableMessage is the JSON payload exchanged over the transport.
type ProductAvailableMessage struct {
	ProductID   *int64 `json:"productId"`
	AvailableOn string `json:"availableOn,omitempty"`
}

// Decode parses a message body. Every failure wraps repo.ErrMalformedEvent.
func Decode(body []byte) (model.ProductAvailableEvent, error) {
	var msg ProductAvailableMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return model.ProductAvailableEvent{}, fmt.Errorf("%w: %v", repo.ErrMalformedEvent, err)
	}
	if msg.ProductID == nil {
		return model.ProductAvailableEvent{}, fmt.Errorf("%w: productId is required", repo.ErrMalformedEvent)
	}
	if *msg.ProductID <= 0 {
		return model.ProductAvailableEvent{}, fmt.Errorf("%w: productId must be positive, got %d", repo.ErrMalformedEvent, *msg.ProductID)
	}

	event := model.ProductAvailableEvent{ProductID: *msg.ProductID}
	if msg.AvailableOn != "" {
		on, err := time.Parse(model.DateLayout, msg.AvailableOn)
		if err != nil {
			return model.ProductAvailableEvent{}, fmt.Errorf("%w: invalid availableOn %q", repo.ErrMalformedEvent, msg.AvailableOn)
		}
		event.AvailableOn = on
	}
	return event, nil
}

// Encode produces the message body for an event. A zero date is omitted.
func Encode(e model.ProductAvailableEvent) ([]byte, error) {
	id := e.ProductID
	msg := ProductAvailableMessage{ProductID: &id}
	if !e.AvailableOn.IsZero() {
		msg.AvailableOn = e.AvailableOn.Format(model.DateLayout)
	}
	return json.Marshal(msg)
}
