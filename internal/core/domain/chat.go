package domain

// ChatMessage is one entry of the prompt sent to the model backend.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions tunes a model call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// TurnEventType distinguishes relayed tokens from the final event.
type TurnEventType string

const (
	TurnEventToken TurnEventType = "token"
	TurnEventDone  TurnEventType = "done"
)

// TurnEvent is emitted to the caller while a chat turn streams.
// A done event carries the persisted assistant message and is always last.
type TurnEvent struct {
	Type    TurnEventType `json:"type"`
	Token   string        `json:"token,omitempty"`
	Message *Message      `json:"message,omitempty"`
}
