package bus

// EventKind distinguishes gateway lifecycle events from chat messages on the
// inbound queue, so both are handled in arrival order by one consumer.
type EventKind int

const (
	EventMessage EventKind = iota
	EventReady
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	default:
		return "message"
	}
}

type InboundMessage struct {
	Kind        EventKind         `json:"kind"`
	Channel     string            `json:"channel"`
	MessageID   string            `json:"message_id,omitempty"`
	SenderID    string            `json:"sender_id"`
	DisplayName string            `json:"display_name"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	IsSelf      bool              `json:"is_self"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}
