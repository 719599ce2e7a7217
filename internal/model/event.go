package model

// EventKind classifies inbound transport events.
type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventDocument
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventCommand:
		return "command"
	case EventDocument:
		return "document"
	case EventCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Event is a transport-neutral inbound update.
type Event struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Kind      EventKind

	Text    string
	Command string

	FileID   string
	FileName string
	FileSize int64

	CallbackID   string
	CallbackData string
}

// MessageRef identifies a message the bot sent and may edit later.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
	// Caption is true when the message is media and its caption must be edited.
	Caption bool `json:"caption,omitempty"`
}

// IsZero reports whether the reference points at nothing.
func (r MessageRef) IsZero() bool {
	return r.MessageID == 0
}

// Button is an inline keyboard button.
type Button struct {
	Text string
	Data string
}
