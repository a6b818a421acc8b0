package entities

import (
	"errors"
	"time"
)

// ChatSession represents the active conversation for one health profile.
//
// The session ID is assigned by the remote chat API and stays empty until
// resolution succeeds. The message log is append-only from the client's
// perspective: history loaded from the server replaces the log wholesale,
// local appends during the session only ever add to it.
type ChatSession struct {
	ID        string        `json:"id"`
	ProfileID string        `json:"profile_id"`
	CreatedAt time.Time     `json:"created_at"`
	Messages  []ChatMessage `json:"messages"`

	lastTimestamp time.Time
}

// NewChatSession creates an unresolved session for a profile.
func NewChatSession(profileID string) *ChatSession {
	return &ChatSession{
		ProfileID: profileID,
		CreatedAt: time.Now(),
		Messages:  make([]ChatMessage, 0),
	}
}

// Resolved reports whether the remote API has assigned a session ID.
func (s *ChatSession) Resolved() bool {
	return s.ID != ""
}

// Append adds a message to the log, clamping its timestamp so that
// timestamps are monotonically non-decreasing within the session.
func (s *ChatSession) Append(msg ChatMessage) ChatMessage {
	if msg.Timestamp.Before(s.lastTimestamp) {
		msg.Timestamp = s.lastTimestamp
	}
	s.lastTimestamp = msg.Timestamp
	s.Messages = append(s.Messages, msg)
	return msg
}

// ReplaceHistory resets the log to the server's authoritative order.
func (s *ChatSession) ReplaceHistory(history []ChatMessage) {
	s.Messages = make([]ChatMessage, 0, len(history))
	s.lastTimestamp = time.Time{}
	for _, msg := range history {
		msg.Confirmed = true
		s.Append(msg)
	}
}

// ConfirmLast marks the most recent message with the given role as
// server-confirmed. The echo object itself stays in the log.
func (s *ChatSession) ConfirmLast(role MessageRole) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == role {
			s.Messages[i].Confirmed = true
			return
		}
	}
}

// Validate validates the session data.
func (s *ChatSession) Validate() error {
	if s.ProfileID == "" {
		return errors.New("profile_id is required")
	}
	return nil
}
