package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "MESSAGE_SENT").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Published by the messaging core.
const (
	TypeMessageSent         = "MESSAGE_SENT"
	TypeMessagesRead        = "MESSAGES_READ"
	TypeConversationStarted = "CONVERSATION_STARTED"
)

// Consumed from the identity provider.
const (
	TypeProfileUpserted = "PROFILE_UPSERTED"
)

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// New stamps the occurrence time into the payload so consumers can order events.
func New(eventType string, data map[string]interface{}, at time.Time) BaseEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["occurred_at"] = at
	return BaseEvent{Type: eventType, Data: data, OccurredAt: at}
}
