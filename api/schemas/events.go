// api/schemas/events.go
package schemas

import "time"

// RawEvent is a user-generated DOM event as delivered by the in-page listener
// binding, before normalization. Kind is the DOM event type.
type RawEvent struct {
	Kind      string    `json:"kind"` // click, input, change, scroll
	Selector  string    `json:"selector,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Text      string    `json:"text,omitempty"`
	Value     string    `json:"value,omitempty"`
	Modifier  bool      `json:"modifier,omitempty"`
	X         float64   `json:"x,omitempty"`
	Y         float64   `json:"y,omitempty"`
	ScrollX   float64   `json:"scrollX,omitempty"`
	ScrollY   float64   `json:"scrollY,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorded event kinds emitted by the capture engine.
const (
	EventClick   = "click"
	EventExtract = "extract"
	EventInput   = "input"
	EventScroll  = "scroll"
)

// RecordedEvent is one normalized entry in the recording stream.
type RecordedEvent struct {
	Type      string    `json:"type"`
	Selector  string    `json:"selector,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Text      string    `json:"text,omitempty"`
	Value     string    `json:"value,omitempty"`
	X         int       `json:"x,omitempty"`
	Y         int       `json:"y,omitempty"`
	DeltaX    int       `json:"deltaX,omitempty"`
	DeltaY    int       `json:"deltaY,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is the attachment state of the driver's single session.
type SessionState string

const (
	StateDetached  SessionState = "detached"
	StateAttaching SessionState = "attaching"
	StateAttached  SessionState = "attached"
)

// Notification types pushed to observers outside the request/response flow.
const (
	NotifyStatus    = "status"
	NotifyRecording = "recording"
)

// Notification is an out-of-band message from the dispatcher to observers:
// attachment status transitions and recording passthrough.
type Notification struct {
	Type     string         `json:"type"`
	State    SessionState   `json:"state,omitempty"`
	TargetID string         `json:"targetId,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Event    *RecordedEvent `json:"event,omitempty"`
}
