package bus

// Inbound activity kinds. Only KindMessage starts a turn.
const (
	KindMessage            = "message"
	KindConversationUpdate = "conversationUpdate"
	KindTyping             = "typing"
)

// InboundMessage is one activity received from a channel, normalized across transports.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	Kind      string            `json:"kind"`
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"`
	MessageID string            `json:"message_id,omitempty"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OutboundKind selects how a channel delivers an OutboundMessage.
type OutboundKind string

const (
	OutboundText  OutboundKind = "text"
	OutboundCard  OutboundKind = "card"
	OutboundTrace OutboundKind = "trace"
)

// OutboundMessage is one channel send operation.
type OutboundMessage struct {
	Channel string       `json:"channel,omitempty"`
	ChatID  string       `json:"chat_id,omitempty"`
	Kind    OutboundKind `json:"kind"`
	Content string       `json:"content,omitempty"`
	Card    *Card        `json:"card,omitempty"`
	Trace   *Trace       `json:"trace,omitempty"`
}

// Card is a channel-neutral attachment card: optional title, images, and
// buttons whose labels are posted back as the next utterance when pressed.
type Card struct {
	Title   string   `json:"title,omitempty"`
	Images  []string `json:"images,omitempty"`
	Buttons []string `json:"buttons,omitempty"`
}

// Trace is a diagnostic activity. Only developer channels render it.
type Trace struct {
	Name      string `json:"name"`
	Label     string `json:"label,omitempty"`
	ValueType string `json:"value_type,omitempty"`
	Value     string `json:"value,omitempty"`
}
