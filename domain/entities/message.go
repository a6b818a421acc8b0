package entities

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// MessageMetadata carries the optional flags attached to a chat message.
type MessageMetadata struct {
	HasImage           bool     `json:"has_image,omitempty"`
	ImageData          string   `json:"image_data,omitempty"`
	VoiceInput         bool     `json:"voice_input,omitempty"`
	Confidence         *float64 `json:"confidence,omitempty"`
	AutoPlayResponse   bool     `json:"auto_play_response,omitempty"`
	PossiblyInaccurate bool     `json:"possibly_inaccurate,omitempty"`
}

// ChatMessage represents a single message in a chat session.
//
// A user message is created locally the instant the send is committed
// (optimistic echo) and is reconciled in place once the server confirms;
// it is never removed from the log.
type ChatMessage struct {
	ID        string          `json:"id"`
	Role      MessageRole     `json:"role"`
	Content   string          `json:"content"`
	Metadata  MessageMetadata `json:"metadata"`
	Timestamp time.Time       `json:"timestamp"`
	Confirmed bool            `json:"confirmed"`
}

// NewUserMessage creates a local user message echo.
func NewUserMessage(content string, metadata MessageMetadata) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      MessageRoleUser,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message from a server reply.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      MessageRoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Confirmed: true,
	}
}
