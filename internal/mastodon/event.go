package mastodon

import (
	"fmt"
	"strings"

	jsonx "celebrator/internal/shared/json"
)

// EventKind names the event carried by a streaming frame.
type EventKind string

const (
	KindUpdate       EventKind = "update"
	KindNotification EventKind = "notification"
	KindDelete       EventKind = "delete"
)

// Event is one decoded streaming event. The concrete type is one of
// UpdateEvent, NotificationEvent, DeleteEvent or UnknownEvent.
type Event interface {
	Kind() EventKind
	isEvent()
}

// UpdateEvent carries a newly created status and its author snapshot.
type UpdateEvent struct {
	Status Status
}

// NotificationEvent carries a notification for the authenticated user.
type NotificationEvent struct {
	Notification Notification
}

// DeleteEvent carries the id of a deleted status.
type DeleteEvent struct {
	StatusID string
}

// UnknownEvent is any event kind the bot does not interpret.
type UnknownEvent struct {
	Name    string
	Payload string
}

func (UpdateEvent) Kind() EventKind       { return KindUpdate }
func (NotificationEvent) Kind() EventKind { return KindNotification }
func (DeleteEvent) Kind() EventKind       { return KindDelete }
func (e UnknownEvent) Kind() EventKind    { return EventKind(e.Name) }

func (UpdateEvent) isEvent()       {}
func (NotificationEvent) isEvent() {}
func (DeleteEvent) isEvent()       {}
func (UnknownEvent) isEvent()      {}

// frame is the websocket envelope. The payload is itself JSON encoded as a
// string, except for delete where it is the bare status id.
type frame struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
	Error   string   `json:"error"`
	Status  int      `json:"status"`
}

// StreamError is a server-side error frame, for example an unknown stream
// name or a revoked token.
type StreamError struct {
	Message    string
	StatusCode int
}

func (e *StreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("streaming error %d: %s", e.StatusCode, e.Message)
	}
	return "streaming error: " + e.Message
}

// DecodeFrame parses one websocket text message into an Event.
func DecodeFrame(data []byte) (Event, error) {
	var f frame
	if err := jsonx.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Error != "" {
		return nil, &StreamError{Message: f.Error, StatusCode: f.Status}
	}

	switch EventKind(f.Event) {
	case KindUpdate:
		var status Status
		if err := jsonx.Unmarshal([]byte(f.Payload), &status); err != nil {
			return nil, fmt.Errorf("decode update payload: %w", err)
		}
		return UpdateEvent{Status: status}, nil
	case KindNotification:
		var n Notification
		if err := jsonx.Unmarshal([]byte(f.Payload), &n); err != nil {
			return nil, fmt.Errorf("decode notification payload: %w", err)
		}
		return NotificationEvent{Notification: n}, nil
	case KindDelete:
		return DeleteEvent{StatusID: strings.TrimSpace(f.Payload)}, nil
	case "":
		return nil, fmt.Errorf("decode frame: missing event name")
	default:
		return UnknownEvent{Name: f.Event, Payload: f.Payload}, nil
	}
}
