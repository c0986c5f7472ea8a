package bus

import "time"

type EventType string

const (
	EventTurnReceived  EventType = "turn_received"
	EventTurnCompleted EventType = "turn_completed"
	EventTurnFailed    EventType = "turn_failed"
	EventTurnIgnored   EventType = "turn_ignored"
)

// Event is the diagnostic record emitted for every inbound activity.
type Event struct {
	Type    EventType         `json:"type"`
	At      time.Time         `json:"at"`
	Channel string            `json:"channel,omitempty"`
	ChatID  string            `json:"chat_id,omitempty"`
	UserID  string            `json:"user_id,omitempty"`
	TurnID  string            `json:"turn_id,omitempty"`
	Failure string            `json:"failure,omitempty"`
	Payload map[string]string `json:"payload,omitempty"`
	Error   string            `json:"error,omitempty"`
}
