package gateway

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/domain/entities"
	"github.com/tdnguyen-dev/healthvoice/internal/chat"
	"github.com/tdnguyen-dev/healthvoice/internal/metrics"
	"github.com/tdnguyen-dev/healthvoice/internal/playback"
	"github.com/tdnguyen-dev/healthvoice/internal/recorder"
)

const activateTimeout = 30 * time.Second

// Client is a middleman between one websocket connection and the voice
// pipeline built for it.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Never closed; done gates
	// every send on it so teardown cannot race producers.
	send chan WriteData

	// Closed by the hub on unregister.
	done chan struct{}

	id        string
	profileID string

	logger *zap.Logger

	controller   *recorder.Controller
	orchestrator *chat.Orchestrator
	playback     *playback.Manager

	mutex   sync.Mutex
	capture *recorder.ChannelCaptureStream
}

func newClient(hub *Hub, conn *websocket.Conn, profileID string, logger *zap.Logger) *Client {
	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		done:      make(chan struct{}),
		id:        uuid.NewString(),
		profileID: profileID,
		logger:    logger.With(zap.String("profileID", profileID)),
	}

	c.playback = playback.NewManager(c.logger)
	c.playback.OnControlChange(func(messageID string, active bool) {
		c.enqueueJSON(NewPlaybackStateMessage(messageID, active))
	})

	c.controller = recorder.NewController(hub.recorderCfg, c, hub.transcriber, c.logger)
	c.controller.OnStateChange(func(state recorder.State) {
		c.enqueueJSON(NewRecorderStateMessage(state.String()))
	})

	c.orchestrator = chat.NewOrchestrator(hub.chatAPI, hub.profile, c.playback, c, c.logger)
	return c
}

// Open implements recorder.CaptureDevice: the client's binary frames
// are the microphone.
func (c *Client) Open(ctx context.Context) (recorder.CaptureStream, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	stream := recorder.NewChannelCaptureStream(64)
	c.capture = stream
	return stream, nil
}

// WriteAudioChunk implements playback.AudioSink by forwarding synthesized
// audio to the client as a binary frame.
func (c *Client) WriteAudioChunk(data []byte) error {
	select {
	case <-c.done:
		return errors.New("client disconnected")
	default:
	}

	select {
	case c.send <- WriteData{Type: websocket.BinaryMessage, Payload: data}:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}

// enqueueJSON queues one control message, dropping it if the client
// cannot keep up or has disconnected.
func (c *Client) enqueueJSON(msg ServerMessage) {
	select {
	case <-c.done:
		return
	default:
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Dropping control message, send buffer full",
			zap.String("type", string(msg.Type)))
	}
}

// activate resolves the chat session and announces it to the client.
func (c *Client) activate() {
	ctx, cancel := context.WithTimeout(context.Background(), activateTimeout)
	defer cancel()

	if err := c.orchestrator.Activate(ctx, c.profileID); err != nil {
		c.logger.Error("Session activation failed", zap.Error(err))
		c.enqueueJSON(NewErrorMessage("session_unavailable",
			"Không thể kết nối phiên tư vấn. Vui lòng thử lại sau."))
		return
	}

	c.enqueueJSON(NewSessionReadyMessage(c.profileID, c.orchestrator.Messages()))
}

// readPump pumps messages from the websocket connection to the pipeline.
func (c *Client) readPump() {
	defer func() {
		c.playback.StopAll()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the pipeline to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage dispatches one control message.
func (c *Client) processMessage(payload []byte) {
	msg, err := ParseClientMessage(payload)
	if err != nil {
		c.logger.Warn("Rejected control message", zap.Error(err))
		c.enqueueJSON(NewErrorMessage("invalid_message", err.Error()))
		return
	}

	switch msg.Type {
	case MessageTypeListeningStart:
		c.handleListeningStart()
	case MessageTypeListeningEnd:
		go c.handleListeningEnd()
	case MessageTypeChatText:
		go c.handleChatText(msg)
	case MessageTypePlayMessage:
		go c.handlePlayMessage(msg.MessageID)
	case MessageTypeStopPlayback:
		c.playback.StopAll()
	}
}

// processBinaryFrame decodes little-endian float32 samples and feeds
// them to the active capture stream. Frames outside a recording session
// are discarded.
func (c *Client) processBinaryFrame(data []byte) {
	frame, err := decodeFrame(data)
	if err != nil {
		c.logger.Warn("Discarding malformed audio frame", zap.Int("size", len(data)))
		return
	}

	c.mutex.Lock()
	stream := c.capture
	c.mutex.Unlock()
	if stream == nil {
		return
	}

	if !stream.Push(frame) {
		c.logger.Debug("Dropped audio frame", zap.Int("samples", len(frame)))
	}
}

// decodeFrame converts a binary frame of little-endian float32 samples.
func decodeFrame(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errors.New("frame size must be a positive multiple of 4")
	}

	frame := make([]float32, len(data)/4)
	for i := range frame {
		frame[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return frame, nil
}

// handleListeningStart begins a recording session on press.
func (c *Client) handleListeningStart() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.controller.Start(ctx); err != nil {
		metrics.RecordingsTotal.WithLabelValues("start_failed").Inc()
		c.enqueueJSON(NewErrorMessage("recording_failed", recorder.UserMessage(err)))
		return
	}
	metrics.RecordingsTotal.WithLabelValues("started").Inc()
}

// handleListeningEnd finishes the recording, transcribes it, and sends
// the result through the conversation.
func (c *Client) handleListeningEnd() {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	transcription, err := c.controller.Stop(ctx)
	if err != nil {
		metrics.RecordingsTotal.WithLabelValues("failed").Inc()
		metrics.TranscriptionsTotal.WithLabelValues("error").Inc()
		c.enqueueJSON(NewErrorMessage("transcription_failed", recorder.UserMessage(err)))
		return
	}
	if transcription == nil {
		// Released before recording started.
		return
	}

	metrics.RecordingsTotal.WithLabelValues("completed").Inc()
	metrics.TranscriptionsTotal.WithLabelValues("ok").Inc()

	_, err = c.orchestrator.SendTranscription(ctx, transcription)
	if c.notifyChatRejection(err) {
		metrics.MessagesSentTotal.WithLabelValues("voice", "error").Inc()
		return
	}

	c.emitLogTail()
	if err != nil {
		metrics.MessagesSentTotal.WithLabelValues("voice", "error").Inc()
		return
	}
	metrics.MessagesSentTotal.WithLabelValues("voice", "ok").Inc()
}

// handleChatText sends a typed message through the conversation.
func (c *Client) handleChatText(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	reply, err := c.orchestrator.Send(ctx, msg.Content, messageMetadata(msg))
	if c.notifyChatRejection(err) {
		metrics.MessagesSentTotal.WithLabelValues("text", "error").Inc()
		return
	}

	c.emitLogTail()
	if err != nil {
		metrics.MessagesSentTotal.WithLabelValues("text", "error").Inc()
		return
	}
	if reply != nil {
		metrics.MessagesSentTotal.WithLabelValues("text", "ok").Inc()
	}
}

// notifyChatRejection reports a rejected send back to the client. It
// returns true when the error was a rejection and a message went out;
// other errors are left for the caller.
func (c *Client) notifyChatRejection(err error) bool {
	switch {
	case errors.Is(err, chat.ErrSendInFlight):
		c.enqueueJSON(NewErrorMessage("send_in_flight",
			"Tin nhắn trước đang được xử lý. Vui lòng đợi."))
		return true
	case errors.Is(err, chat.ErrNotReady):
		c.enqueueJSON(NewErrorMessage("session_unavailable",
			"Phiên tư vấn chưa sẵn sàng. Vui lòng thử lại."))
		return true
	}
	return false
}

// messageMetadata builds the echo metadata for a typed send.
func messageMetadata(msg *ClientMessage) entities.MessageMetadata {
	return entities.MessageMetadata{
		HasImage:  msg.ImageData != "",
		ImageData: msg.ImageData,
	}
}

// emitLogTail sends the newest log entries to the client: the user echo
// and whatever reply, real or substitute, followed it.
func (c *Client) emitLogTail() {
	messages := c.orchestrator.Messages()
	start := len(messages) - 2
	if start < 0 {
		start = 0
	}
	for _, m := range messages[start:] {
		c.enqueueJSON(NewChatMessageEvent(m))
	}
}

// handlePlayMessage toggles playback of an assistant message. Pressing
// the control of the playing clip stops it; otherwise the text is
// synthesized and played, replacing whatever else was playing.
func (c *Client) handlePlayMessage(messageID string) {
	if c.playback.Playing() == messageID {
		c.playback.StopAll()
		return
	}

	if c.hub.synthesizer == nil {
		c.enqueueJSON(NewErrorMessage("playback_unavailable",
			"Chức năng đọc tin nhắn chưa được bật."))
		return
	}

	var content string
	for _, m := range c.orchestrator.Messages() {
		if m.ID == messageID {
			content = m.Content
			break
		}
	}
	if content == "" {
		c.enqueueJSON(NewErrorMessage("message_not_found", "Không tìm thấy tin nhắn."))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	speech, err := c.hub.synthesizer.Generate(ctx, content)
	if err != nil {
		c.logger.Error("Speech synthesis failed",
			zap.String("backend", c.hub.synthesizer.Name()),
			zap.Error(err))
		c.enqueueJSON(NewErrorMessage("synthesis_failed",
			"Không thể tạo giọng đọc. Vui lòng thử lại."))
		return
	}

	player := playback.NewDataURLPlayer(speech.AudioDataURL, c)
	if err := c.playback.Toggle(messageID, player); err != nil {
		c.enqueueJSON(NewErrorMessage("playback_failed",
			"Không thể phát âm thanh. Vui lòng thử lại."))
		return
	}
	metrics.PlaybacksTotal.Inc()
}
