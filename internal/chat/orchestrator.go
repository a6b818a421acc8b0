// Package chat coordinates a conversation: session resolution against
// the remote chat service, the local message log, send serialization,
// and auto-play of synthesized replies.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/domain/entities"
	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
	"github.com/tdnguyen-dev/healthvoice/internal/playback"
)

var (
	// ErrNotReady means the session has not been resolved yet; sends are
	// rejected, not queued.
	ErrNotReady = errors.New("chat session not ready")

	// ErrSendInFlight means a send is already being processed.
	ErrSendInFlight = errors.New("a message is already being sent")
)

// sendFailureReply is shown in place of the assistant's answer when the
// chat service fails mid-exchange. The user's message stays in the log.
const sendFailureReply = "Xin lỗi, có lỗi xảy ra khi xử lý tin nhắn. Vui lòng thử lại."

// inaccuracyNote annotates transcriptions that were flagged as possibly
// inaccurate when they are displayed.
const inaccuracyNote = " (có thể chưa chính xác)"

// Orchestrator drives one profile's conversation. All session state is
// owned here; the gateway layer only forwards events in and out.
type Orchestrator struct {
	api      repositories.ChatAPI
	profile  repositories.ProfileRefresher
	playback *playback.Manager
	sink     playback.AudioSink
	logger   *zap.Logger

	retryDelay time.Duration

	mu       sync.Mutex
	session  *entities.ChatSession
	inFlight bool
}

// NewOrchestrator creates an orchestrator without an active session.
// The profile refresher, playback manager, and sink are optional; when
// absent the corresponding side effects are skipped.
func NewOrchestrator(api repositories.ChatAPI, profile repositories.ProfileRefresher, pb *playback.Manager, sink playback.AudioSink, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		api:        api,
		profile:    profile,
		playback:   pb,
		sink:       sink,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Activate resolves the profile's chat session: reuse the first existing
// one or create a new one, then load its history. Resolution is retried
// once after a short delay before giving up.
func (o *Orchestrator) Activate(ctx context.Context, profileID string) error {
	if profileID == "" {
		return errors.New("profile id is required")
	}

	err := o.resolve(ctx, profileID)
	if err == nil {
		return nil
	}

	o.logger.Warn("session resolution failed, retrying once",
		zap.String("profile_id", profileID),
		zap.Error(err))

	select {
	case <-time.After(o.retryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := o.resolve(ctx, profileID); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return nil
}

func (o *Orchestrator) resolve(ctx context.Context, profileID string) error {
	sessions, err := o.api.ListSessions(ctx, profileID)
	if err != nil {
		return err
	}

	var sessionID string
	if len(sessions) > 0 {
		sessionID = sessions[0].ID
	} else {
		sessionID, err = o.api.CreateSession(ctx, profileID)
		if err != nil {
			return err
		}
	}

	history, err := o.api.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}

	session := entities.NewChatSession(profileID)
	session.ID = sessionID
	session.ReplaceHistory(history)

	o.mu.Lock()
	o.session = session
	o.mu.Unlock()

	o.logger.Info("chat session active",
		zap.String("profile_id", profileID),
		zap.String("session_id", sessionID),
		zap.Int("history", len(history)))
	return nil
}

// Ready reports whether a session is resolved.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session != nil && o.session.Resolved()
}

// Send posts one user message. A send with neither text nor an image
// payload is a silent no-op. The message is echoed into the log
// immediately; at most one send can be in flight, later attempts fail
// with ErrSendInFlight instead of queueing. When the exchange fails a
// substitute assistant reply enters the log so the conversation never
// dangles.
func (o *Orchestrator) Send(ctx context.Context, content string, metadata entities.MessageMetadata) (*entities.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" && metadata.ImageData == "" {
		return nil, nil
	}

	o.mu.Lock()
	if o.session == nil || !o.session.Resolved() {
		o.mu.Unlock()
		return nil, ErrNotReady
	}
	if o.inFlight {
		o.mu.Unlock()
		return nil, ErrSendInFlight
	}
	o.inFlight = true
	sessionID := o.session.ID
	o.session.Append(entities.NewUserMessage(content, metadata))
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	messageType := "text"
	if metadata.VoiceInput {
		messageType = "voice"
	} else if metadata.ImageData != "" {
		messageType = "image"
	}

	resp, err := o.api.PostMessage(ctx, sessionID, repositories.PostMessageRequest{
		Content:          content,
		MessageType:      messageType,
		ImageData:        metadata.ImageData,
		AutoPlayResponse: metadata.AutoPlayResponse,
	})
	if err != nil {
		o.logger.Error("sending message failed",
			zap.String("session_id", sessionID),
			zap.Error(err))

		o.mu.Lock()
		fallback := entities.NewAssistantMessage(sendFailureReply)
		fallback.Confirmed = false
		appended := o.session.Append(fallback)
		o.mu.Unlock()
		return &appended, err
	}

	o.mu.Lock()
	o.session.ConfirmLast(entities.MessageRoleUser)
	reply := o.session.Append(entities.NewAssistantMessage(resp.AIResponse))
	o.mu.Unlock()

	if resp.AutoPlayAudio != "" && metadata.AutoPlayResponse {
		o.autoPlay(reply.ID, resp.AutoPlayAudio)
	}

	o.refreshProfile(ctx)

	return &reply, nil
}

// SendTranscription posts a recognized utterance as a voice message.
// Flagged transcriptions still travel onward unchanged; the flag rides
// in the metadata so the presentation layer can annotate them.
func (o *Orchestrator) SendTranscription(ctx context.Context, tr *repositories.Transcription) (*entities.ChatMessage, error) {
	if tr == nil || strings.TrimSpace(tr.Text) == "" {
		return nil, nil
	}

	confidence := tr.Confidence
	return o.Send(ctx, tr.Text, entities.MessageMetadata{
		VoiceInput:         true,
		Confidence:         &confidence,
		AutoPlayResponse:   true,
		PossiblyInaccurate: tr.PossiblyInaccurate,
	})
}

// DisplayContent renders a message for presentation, annotating flagged
// transcriptions.
func DisplayContent(msg entities.ChatMessage) string {
	if msg.Metadata.PossiblyInaccurate {
		return msg.Content + inaccuracyNote
	}
	return msg.Content
}

// Messages returns a copy of the session log.
func (o *Orchestrator) Messages() []entities.ChatMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	out := make([]entities.ChatMessage, len(o.session.Messages))
	copy(out, o.session.Messages)
	return out
}

// autoPlay starts playback of the synthesized reply through the
// singleton manager.
func (o *Orchestrator) autoPlay(messageID, dataURL string) {
	if o.playback == nil || o.sink == nil {
		return
	}

	player := playback.NewDataURLPlayer(dataURL, o.sink)
	if err := o.playback.Toggle(messageID, player); err != nil {
		o.logger.Warn("auto-play failed to start",
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}

// refreshProfile asks the profile service to re-read cached profile
// data. The assistant may have extracted new health facts during the
// exchange; a refresh failure only loses freshness, so it is logged and
// swallowed.
func (o *Orchestrator) refreshProfile(ctx context.Context) {
	if o.profile == nil {
		return
	}
	if err := o.profile.RefreshCurrentProfile(ctx); err != nil {
		o.logger.Warn("profile refresh failed", zap.Error(err))
	}
}
