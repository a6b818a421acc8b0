package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tdnguyen-dev/healthvoice/domain/entities"
	"github.com/tdnguyen-dev/healthvoice/internal/chat"
)

// MessageType defines the type of WebSocket control message
type MessageType string

// Supported message types
const (
	// Client to server.
	MessageTypeListeningStart MessageType = "listening_start"
	MessageTypeListeningEnd   MessageType = "listening_end"
	MessageTypeChatText       MessageType = "chat_text"
	MessageTypePlayMessage    MessageType = "play_message"
	MessageTypeStopPlayback   MessageType = "stop_playback"

	// Server to client.
	MessageTypeSessionReady  MessageType = "session_ready"
	MessageTypeRecorderState MessageType = "recorder_state"
	MessageTypeChatMessage   MessageType = "chat_message"
	MessageTypePlaybackState MessageType = "playback_state"
	MessageTypeError         MessageType = "error"
)

// ClientMessage is the envelope for all client control messages. Audio
// itself travels as binary frames, never through this envelope.
type ClientMessage struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content,omitempty"`
	ImageData string      `json:"image_data,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ParseClientMessage parses and validates one control message.
func ParseClientMessage(payload []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch msg.Type {
	case MessageTypeListeningStart, MessageTypeListeningEnd, MessageTypeStopPlayback:
		return &msg, nil
	case MessageTypeChatText:
		if msg.Content == "" && msg.ImageData == "" {
			return nil, fmt.Errorf("chat_text requires content")
		}
		return &msg, nil
	case MessageTypePlayMessage:
		if msg.MessageID == "" {
			return nil, fmt.Errorf("play_message requires message_id")
		}
		return &msg, nil
	case "":
		return nil, fmt.Errorf("message missing type field")
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
}

// ServerMessage is the envelope for all server control messages.
type ServerMessage struct {
	Type      MessageType       `json:"type"`
	Timestamp string            `json:"timestamp"`
	SessionID string            `json:"session_id,omitempty"`
	State     string            `json:"state,omitempty"`
	Message   *ChatMessageView  `json:"message,omitempty"`
	History   []ChatMessageView `json:"history,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
	Active    bool              `json:"active,omitempty"`
	Code      string            `json:"error_code,omitempty"`
	Error     string            `json:"message_text,omitempty"`
}

// ChatMessageView is the client-facing rendering of a chat message.
type ChatMessageView struct {
	ID                 string    `json:"id"`
	Role               string    `json:"role"`
	Content            string    `json:"content"`
	VoiceInput         bool      `json:"voice_input,omitempty"`
	PossiblyInaccurate bool      `json:"possibly_inaccurate,omitempty"`
	Confirmed          bool      `json:"confirmed"`
	Timestamp          time.Time `json:"timestamp"`
}

// NewChatMessageView renders one message, annotating flagged
// transcriptions for display.
func NewChatMessageView(msg entities.ChatMessage) ChatMessageView {
	return ChatMessageView{
		ID:                 msg.ID,
		Role:               string(msg.Role),
		Content:            chat.DisplayContent(msg),
		VoiceInput:         msg.Metadata.VoiceInput,
		PossiblyInaccurate: msg.Metadata.PossiblyInaccurate,
		Confirmed:          msg.Confirmed,
		Timestamp:          msg.Timestamp,
	}
}

func newServerMessage(t MessageType) ServerMessage {
	return ServerMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// NewSessionReadyMessage announces a resolved session with its history.
func NewSessionReadyMessage(sessionID string, history []entities.ChatMessage) ServerMessage {
	msg := newServerMessage(MessageTypeSessionReady)
	msg.SessionID = sessionID
	msg.History = make([]ChatMessageView, 0, len(history))
	for _, m := range history {
		msg.History = append(msg.History, NewChatMessageView(m))
	}
	return msg
}

// NewRecorderStateMessage reports a recorder state change.
func NewRecorderStateMessage(state string) ServerMessage {
	msg := newServerMessage(MessageTypeRecorderState)
	msg.State = state
	return msg
}

// NewChatMessageEvent carries one new log entry to the client.
func NewChatMessageEvent(m entities.ChatMessage) ServerMessage {
	msg := newServerMessage(MessageTypeChatMessage)
	view := NewChatMessageView(m)
	msg.Message = &view
	return msg
}

// NewPlaybackStateMessage reports a playback control change.
func NewPlaybackStateMessage(messageID string, active bool) ServerMessage {
	msg := newServerMessage(MessageTypePlaybackState)
	msg.MessageID = messageID
	msg.Active = active
	return msg
}

// NewErrorMessage creates a standardized error message.
func NewErrorMessage(code, text string) ServerMessage {
	msg := newServerMessage(MessageTypeError)
	msg.Code = code
	msg.Error = text
	return msg
}
