package events

import (
	"encoding/json"
	"time"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TopicChat carries every application event.
const TopicChat = "chat"

type EventType string

const (
	EventTypeReplyReady      EventType = "reply-ready"
	EventTypeProcessingError EventType = "processing-error"
	EventTypeSessionCreated  EventType = "session-created"
	EventTypeSessionDeleted  EventType = "session-deleted"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
}

// EventMetadata is shared by all events.
type EventMetadata struct {
	ID   uuid.UUID `json:"id"`
	Time time.Time `json:"time"`
}

func NewEventMetadata() EventMetadata {
	return EventMetadata{ID: uuid.New(), Time: time.Now()}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`
}

func (e *EventImpl) Type() EventType         { return e.Type_ }
func (e *EventImpl) Metadata() EventMetadata { return e.Metadata_ }

// EventReplyReady is published once an assistant turn was appended.
type EventReplyReady struct {
	EventImpl
	Session string            `json:"session"`
	Turn    conversation.Turn `json:"turn"`
}

func NewReplyReadyEvent(session string, turn conversation.Turn) *EventReplyReady {
	return &EventReplyReady{
		EventImpl: EventImpl{Type_: EventTypeReplyReady, Metadata_: NewEventMetadata()},
		Session:   session,
		Turn:      turn,
	}
}

// EventProcessingError reports a background task that failed.
type EventProcessingError struct {
	EventImpl
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

func NewProcessingErrorEvent(taskID string, err error) *EventProcessingError {
	return &EventProcessingError{
		EventImpl: EventImpl{Type_: EventTypeProcessingError, Metadata_: NewEventMetadata()},
		TaskID:    taskID,
		Error:     err.Error(),
	}
}

type EventSessionCreated struct {
	EventImpl
	Session string `json:"session"`
}

func NewSessionCreatedEvent(session string) *EventSessionCreated {
	return &EventSessionCreated{
		EventImpl: EventImpl{Type_: EventTypeSessionCreated, Metadata_: NewEventMetadata()},
		Session:   session,
	}
}

type EventSessionDeleted struct {
	EventImpl
	Session string `json:"session"`
}

func NewSessionDeletedEvent(session string) *EventSessionDeleted {
	return &EventSessionDeleted{
		EventImpl: EventImpl{Type_: EventTypeSessionDeleted, Metadata_: NewEventMetadata()},
		Session:   session,
	}
}

// NewEventFromJson decodes an event published on TopicChat.
func NewEventFromJson(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, err
	}

	var ev Event
	switch hdr.Type {
	case EventTypeReplyReady:
		ev = &EventReplyReady{}
	case EventTypeProcessingError:
		ev = &EventProcessingError{}
	case EventTypeSessionCreated:
		ev = &EventSessionCreated{}
	case EventTypeSessionDeleted:
		ev = &EventSessionDeleted{}
	default:
		return nil, errors.Errorf("unknown event type %q", hdr.Type)
	}
	if err := json.Unmarshal(b, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
