package realtime

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventStepAdded       EventType = "step_added"
	EventStepExecuted    EventType = "step_executed"
	EventStepDeleted     EventType = "step_deleted"
	EventSnapshotSaved   EventType = "snapshot_saved"
	EventSessionReverted EventType = "session_reverted"
	EventFileIngested    EventType = "file_ingested"
	EventChatMessage     EventType = "chat_message"
)

// Event is one session-scoped notification fanned out to every
// subscriber watching that session.
type Event struct {
	SessionID uuid.UUID `json:"session_id"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

func NewEvent(sessionID uuid.UUID, typ EventType, payload any) Event {
	return Event{SessionID: sessionID, Type: typ, Payload: payload, At: time.Now().UTC()}
}
