package repositories

import (
	"context"

	"github.com/tdnguyen-dev/healthvoice/domain/entities"
)

// SessionInfo is the summary the chat API returns when listing sessions.
type SessionInfo struct {
	ID          string `json:"id"`
	SessionName string `json:"session_name,omitempty"`
}

// PostMessageRequest is the payload for sending one message.
type PostMessageRequest struct {
	Content          string `json:"content"`
	MessageType      string `json:"message_type"`
	ImageData        string `json:"image_data,omitempty"`
	AutoPlayResponse bool   `json:"auto_play_response,omitempty"`
}

// PostMessageResponse is the chat API's reply to a posted message.
type PostMessageResponse struct {
	AIResponse    string `json:"ai_response"`
	AutoPlayAudio string `json:"auto_play_audio,omitempty"`
}

// ChatAPI abstracts the remote chat service.
type ChatAPI interface {
	ListSessions(ctx context.Context, profileID string) ([]SessionInfo, error)
	CreateSession(ctx context.Context, profileID string) (string, error)
	ListMessages(ctx context.Context, sessionID string) ([]entities.ChatMessage, error)
	PostMessage(ctx context.Context, sessionID string, req PostMessageRequest) (*PostMessageResponse, error)
}

// ProfileRefresher abstracts the profile collaborator. The assistant may
// extract new health facts during an exchange, so cached profile data is
// refreshed after every successful send.
type ProfileRefresher interface {
	RefreshCurrentProfile(ctx context.Context) error
}
