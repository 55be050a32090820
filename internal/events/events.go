// Package events carries registration state changes to interested
// subscribers over a redis pub/sub channel.
package events

import (
	"context"
	"time"
)

// Type names a state change.
type Type string

const (
	// TypeRegistered is emitted after a user record is created.
	TypeRegistered Type = "registration.created"
	// TypeVerified is emitted after a user's email is verified.
	TypeVerified Type = "registration.verified"
)

// DefaultChannel is the redis channel used when none is configured.
const DefaultChannel = "colcon:registrations"

// Event describes a single state change of the registration store.
type Event struct {
	Type       Type      `json:"type"`
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error {
	return nil
}
