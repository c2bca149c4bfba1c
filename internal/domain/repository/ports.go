package repository

import (
	"context"

	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
)

// AlertDirectory resolves which users registered an alert for a product on a date.
// The matching itself is owned by the external User Directory.
type AlertDirectory interface {
	// Resolve returns the matching users in directory order. No match is an empty slice, not an error.
	Resolve(ctx context.Context, q model.AlertQuery) ([]model.AlertedUser, error)
}

// OutcomeStore keeps the most recent dispatch outcome per product for operators.
type OutcomeStore interface {
	// Save overwrites the latest outcome for the outcome's product.
	Save(ctx context.Context, o *model.DispatchOutcome) error

	// Latest returns the most recent outcome for a product or ErrNotFound.
	Latest(ctx context.Context, productID int64) (*model.DispatchOutcome, error)
}

// EventPublisher publishes product availability events to the messaging transport.
type EventPublisher interface {
	Publish(ctx context.Context, e model.ProductAvailableEvent) error
}
