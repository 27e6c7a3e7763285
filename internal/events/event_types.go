package events

import (
	"time"

	"github.com/spec-kit/family-session/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionStateChanged EventType = "session_state_changed"
	EventPrimaryOpened       EventType = "primary_session_opened"
	EventPrimaryClosed       EventType = "primary_session_closed"
	EventProfileEntered      EventType = "profile_entered"
	EventProfileExited       EventType = "profile_exited"
	EventTokenInvalidated    EventType = "token_invalidated"
)

// Event represents a session transition emitted by the services. State is
// the snapshot after the transition.
type Event struct {
	ID        string              `json:"id"`
	Type      EventType           `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	State     domain.SessionState `json:"state"`
	Payload   interface{}         `json:"payload,omitempty"`
}

// TokenInvalidatedPayload payload.
type TokenInvalidatedPayload struct {
	Scope string `json:"scope"`
}

// ProfileEnteredPayload payload.
type ProfileEnteredPayload struct {
	ProfileID string             `json:"profile_id"`
	Role      domain.ProfileRole `json:"role"`
}
