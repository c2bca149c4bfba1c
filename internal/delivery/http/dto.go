package http

import (
	"time"

	"github.com/google/uuid"
)

// PublishAvailabilityRequest is the optional body of an availability announcement.
// It uses `json` tags for unmarshalling and `binding` for validation with Gin.
type PublishAvailabilityRequest struct {
	AvailableOn string `json:"availableOn" binding:"omitempty,datetime=2006-01-02"`
}

// PublishAvailabilityResponse acknowledges an accepted announcement.
type PublishAvailabilityResponse struct {
	ProductID   int64  `json:"productId"`
	AvailableOn string `json:"availableOn,omitempty"`
	Status      string `json:"status"`
}

// UserFailureResponse describes one user that could not be notified.
type UserFailureResponse struct {
	UserID int64  `json:"userId"`
	Reason string `json:"reason"`
}

// DispatchOutcomeResponse defines the structure of a dispatch outcome.
type DispatchOutcomeResponse struct {
	ID            uuid.UUID             `json:"id"`
	ProductID     int64                 `json:"productId"`
	AvailableOn   string                `json:"availableOn"`
	Status        string                `json:"status"`
	UsersResolved int                   `json:"usersResolved"`
	UsersNotified int                   `json:"usersNotified"`
	UsersFailed   []UserFailureResponse `json:"usersFailed"`
	QueryError    string                `json:"queryError,omitempty"`
	StartedAt     time.Time             `json:"startedAt"`
	FinishedAt    time.Time             `json:"finishedAt"`
}

// ErrorResponse defines a standard structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
