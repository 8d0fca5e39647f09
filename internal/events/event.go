package events

import "time"

// Type tags an event with its workflow phase. The set is closed: stream
// consumers switch on these values and unknown tags would be dropped on the
// client side.
type Type string

// Session-scoped event types, published on the automation session's channel.
const (
	TypeConnected      Type = "connected"
	TypeSessionCreated Type = "session_created"
	TypeLiveViewReady  Type = "live_view_ready"
	TypeNavigation     Type = "navigation"
	TypeActionStart    Type = "action_start"
	TypeActionComplete Type = "action_complete"
	TypeError          Type = "error"
	TypeComplete       Type = "complete"
)

// Execution-scoped event types, published on an execution's channel.
const (
	TypeExecutionStarted  Type = "execution:started"
	TypePlanCreated       Type = "plan:created"
	TypePhaseStart        Type = "phase:start"
	TypeThinking          Type = "thinking"
	TypeToolStart         Type = "tool:start"
	TypeToolComplete      Type = "tool:complete"
	TypePhaseComplete     Type = "phase:complete"
	TypeExecutionComplete Type = "execution:complete"
	TypeExecutionError    Type = "execution:error"
)

// Event is one discrete message on a channel.
type Event struct {
	Type      Type           `json:"type"`
	ChannelID string         `json:"channelId"`
	Data      map[string]any `json:"data,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an event stamped with the current time.
func New(eventType Type, channelID string) Event {
	return Event{Type: eventType, ChannelID: channelID, Timestamp: time.Now()}
}

// WithData attaches a structured payload.
func (e Event) WithData(data map[string]any) Event {
	e.Data = data
	return e
}

// WithMessage attaches a human-readable message.
func (e Event) WithMessage(message string) Event {
	e.Message = message
	return e
}

// IsTerminal reports whether the event ends its channel's workflow. Terminal
// events get preferential delivery when a subscriber's buffer is full, and
// execution-scoped streams close after forwarding one.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case TypeComplete, TypeError, TypeExecutionComplete, TypeExecutionError:
		return true
	default:
		return false
	}
}
