package model

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the ISO-8601 calendar date layout used on every wire boundary.
const DateLayout = "2006-01-02"

// ProductAvailableEvent announces that a product can be ordered again.
// A zero AvailableOn means the producer did not send a date.
type ProductAvailableEvent struct {
	ProductID   int64
	AvailableOn time.Time
}

// AlertQuery is the request sent to the User Directory.
type AlertQuery struct {
	ProductID   int64
	AvailableOn time.Time
}

// NewAlertQuery derives the query from an event, using today when the event has no date.
func NewAlertQuery(e ProductAvailableEvent, today time.Time) AlertQuery {
	on := e.AvailableOn
	if on.IsZero() {
		on = today
	}
	return AlertQuery{ProductID: e.ProductID, AvailableOn: DateOf(on)}
}

// DateOf returns the calendar date of t, as seen in t's location, at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ContactInfo is opaque to the dispatch pipeline; only notifiers look inside.
type ContactInfo struct {
	Email          string
	PhoneNumber    string
	TelegramChatID int64
}

// AlertedUser is a user whose alert matched a product/date pair.
type AlertedUser struct {
	UserID   int64
	FullName string
	Contact  ContactInfo
}

// DispatchStatus summarizes how a dispatch ended.
type DispatchStatus string

const (
	DispatchCompleted   DispatchStatus = "completed"    // Every resolved user was attempted.
	DispatchNoUsers     DispatchStatus = "no_users"     // The directory returned no users.
	DispatchQueryFailed DispatchStatus = "query_failed" // The directory could not be queried.
)

// UserFailure records why a single user was not notified.
type UserFailure struct {
	UserID int64
	Reason string
}

// DispatchOutcome is the per-event result of the dispatch pipeline.
// UsersNotified + len(UsersFailed) always equals UsersResolved.
type DispatchOutcome struct {
	ID            uuid.UUID
	ProductID     int64
	AvailableOn   time.Time
	Status        DispatchStatus
	UsersResolved int
	UsersNotified int
	UsersFailed   []UserFailure
	QueryError    string // Set only when Status is DispatchQueryFailed.
	StartedAt     time.Time
	FinishedAt    time.Time
}

// NewDispatchOutcome starts an outcome for the given query.
func NewDispatchOutcome(q AlertQuery, startedAt time.Time) *DispatchOutcome {
	return &DispatchOutcome{
		ID:          uuid.New(),
		ProductID:   q.ProductID,
		AvailableOn: q.AvailableOn,
		UsersFailed: []UserFailure{},
		StartedAt:   startedAt,
	}
}
