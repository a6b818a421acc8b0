// Package chatapi implements the REST client for the remote chat
// service that owns sessions, message history, and the assistant.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/domain/entities"
	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
)

const requestTimeout = 60 * time.Second

// Config holds the chat service settings.
type Config struct {
	BaseURL string
	Token   string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("chat API base URL is required")
	}
	return nil
}

// Client talks to the chat service. Message history is authoritative on
// the server side; the client never caches across calls.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

var _ repositories.ChatAPI = (*Client)(nil)

// NewClient creates a chat API client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}, nil
}

// ListSessions returns the profile's existing chat sessions, oldest
// first.
func (c *Client) ListSessions(ctx context.Context, profileID string) ([]repositories.SessionInfo, error) {
	var sessions []repositories.SessionInfo
	path := fmt.Sprintf("/api/profiles/%s/chats", profileID)
	if err := c.do(ctx, http.MethodGet, path, nil, &sessions); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// CreateSession creates a new chat session for the profile and returns
// its ID.
func (c *Client) CreateSession(ctx context.Context, profileID string) (string, error) {
	var created repositories.SessionInfo
	path := fmt.Sprintf("/api/profiles/%s/chats", profileID)
	if err := c.do(ctx, http.MethodPost, path, map[string]string{}, &created); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("creating session: service returned no session id")
	}
	return created.ID, nil
}

// wireMessage is the service's message representation.
type wireMessage struct {
	ID        string                   `json:"id"`
	Role      string                   `json:"role"`
	Content   string                   `json:"content"`
	Metadata  entities.MessageMetadata `json:"metadata"`
	Timestamp time.Time                `json:"timestamp"`
}

// ListMessages returns the session's full history in server order.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]entities.ChatMessage, error) {
	var wire []wireMessage
	path := fmt.Sprintf("/api/chats/%s/messages", sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	messages := make([]entities.ChatMessage, 0, len(wire))
	for _, m := range wire {
		messages = append(messages, entities.ChatMessage{
			ID:        m.ID,
			Role:      entities.MessageRole(m.Role),
			Content:   m.Content,
			Metadata:  m.Metadata,
			Timestamp: m.Timestamp,
			Confirmed: true,
		})
	}
	return messages, nil
}

// PostMessage sends one user message and returns the assistant's reply.
func (c *Client) PostMessage(ctx context.Context, sessionID string, req repositories.PostMessageRequest) (*repositories.PostMessageResponse, error) {
	var resp repositories.PostMessageResponse
	path := fmt.Sprintf("/api/chats/%s/messages", sessionID)
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("posting message: %w", err)
	}
	return &resp, nil
}

// do performs one request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("chat API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
