package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
	"github.com/tdnguyen-dev/healthvoice/internal/audio"
	"github.com/tdnguyen-dev/healthvoice/internal/metrics"
)

// State represents the current phase of a recording session.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateEncoding
	StateTranscribing
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateEncoding:
		return "encoding"
	case StateTranscribing:
		return "transcribing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config contains recording parameters. The sample rate is fixed by the
// transcription contract; the max duration bounds the sample buffer.
type Config struct {
	SampleRate       int
	FrameSize        int
	MaxRecordSeconds int
}

// DefaultConfig returns the parameters required by the transcription
// contract: 16 kHz mono, 4096-sample frames (~256 ms per callback).
func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		FrameSize:        4096,
		MaxRecordSeconds: 120,
	}
}

// StateListener receives state-change notifications. Listeners are
// invoked synchronously and must not call back into the controller.
type StateListener func(state State)

// Controller drives one press-to-hold recording session: microphone
// acquisition, frame buffering, container encoding, and hand-off to the
// transcriber. It owns exactly one sample buffer per session and keeps
// all mutable state on the instance so isolated controllers can be
// constructed in tests.
//
// Only one session may be non-Idle at a time; Start while a session is
// active is a no-op, as is Stop while Idle.
type Controller struct {
	mu          sync.Mutex
	cfg         Config
	device      CaptureDevice
	transcriber repositories.Transcriber
	logger      *zap.Logger

	state     State
	lastErr   error
	buffer    *audio.SampleBuffer
	stream    CaptureStream
	drained   chan struct{}
	listeners []StateListener
}

// NewController creates a controller in the Idle state.
func NewController(cfg Config, device CaptureDevice, transcriber repositories.Transcriber, logger *zap.Logger) *Controller {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultConfig().SampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultConfig().FrameSize
	}
	if cfg.MaxRecordSeconds <= 0 {
		cfg.MaxRecordSeconds = DefaultConfig().MaxRecordSeconds
	}

	return &Controller{
		cfg:         cfg,
		device:      device,
		transcriber: transcriber,
		logger:      logger,
		state:       StateIdle,
	}
}

// OnStateChange registers a state-change listener.
func (c *Controller) OnStateChange(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed session, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Start begins a recording session on press. A press while another
// session is active is ignored, not queued. A prior error does not block
// a fresh explicit attempt.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateError {
		c.mu.Unlock()
		c.logger.Debug("ignoring start, session already active", zap.String("state", c.state.String()))
		return nil
	}
	c.lastErr = nil
	c.setStateLocked(StateAcquiring)
	c.mu.Unlock()

	stream, err := c.device.Open(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAcquiring {
		// Released before the stream was granted; never start capture.
		if stream != nil {
			stream.Close()
		}
		return nil
	}

	if err != nil {
		c.lastErr = fmt.Errorf("microphone unavailable: %w", err)
		c.setStateLocked(StateError)
		return c.lastErr
	}

	c.buffer = audio.NewSampleBuffer(c.cfg.SampleRate * c.cfg.MaxRecordSeconds)
	c.stream = stream
	c.drained = make(chan struct{})
	go c.consume(stream, c.buffer, c.drained)
	c.setStateLocked(StateRecording)
	return nil
}

// consume appends capture frames to the buffer in arrival order until
// the stream closes.
func (c *Controller) consume(stream CaptureStream, buffer *audio.SampleBuffer, drained chan struct{}) {
	defer close(drained)

	warned := false
	for frame := range stream.Frames() {
		if err := buffer.Append(frame); err != nil {
			if errors.Is(err, audio.ErrBufferFull) && !warned {
				warned = true
				c.logger.Warn("recording exceeded maximum duration, dropping frames",
					zap.Int("max_seconds", c.cfg.MaxRecordSeconds))
			}
		}
	}
}

// Stop ends the session on release: capture resources are torn down
// deterministically before encoding starts, regardless of what follows.
// Stop while Idle is a no-op; release before recording started resolves
// back to Idle without capturing.
func (c *Controller) Stop(ctx context.Context) (*repositories.Transcription, error) {
	c.mu.Lock()
	switch c.state {
	case StateRecording:
		// Fall through to teardown below.
	case StateAcquiring:
		c.setStateLocked(StateIdle)
		c.mu.Unlock()
		return nil, nil
	default:
		c.mu.Unlock()
		return nil, nil
	}

	stream := c.stream
	buffer := c.buffer
	drained := c.drained
	c.stream = nil
	c.buffer = nil
	c.setStateLocked(StateEncoding)
	c.mu.Unlock()

	// Guaranteed release: close the capture stream before touching the
	// audio, then wait for in-flight frames to land.
	if err := stream.Close(); err != nil {
		c.logger.Warn("failed to close capture stream", zap.Error(err))
	}
	<-drained

	samples := buffer.Samples()
	buffer.Reset()

	container, err := audio.EncodeWAV(samples, c.cfg.SampleRate)
	if err == nil {
		err = audio.ValidateContainer(container)
	}
	if err != nil {
		failure := fmt.Errorf("%w: %v", repositories.ErrNoAudioData, err)
		c.fail(failure)
		return nil, failure
	}

	if dur, derr := audio.Duration(container); derr == nil {
		metrics.RecordingDuration.Observe(dur)
	}

	c.setState(StateTranscribing)

	transcription, err := c.transcriber.Transcribe(ctx, container)
	if err != nil {
		c.fail(err)
		return nil, err
	}

	c.setState(StateIdle)
	return transcription, nil
}

// Reset clears a terminal error back to Idle.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateError {
		c.lastErr = nil
		c.setStateLocked(StateIdle)
	}
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	c.setStateLocked(StateError)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(s)
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	for _, l := range c.listeners {
		l(s)
	}
}

// UserMessage maps a session error to the remediation text shown to the
// user. The taxonomy classes surface distinct hints.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, repositories.ErrNoAudioData):
		return "Không thu được âm thanh. Hãy giữ nút ghi âm và nói rõ hơn."
	case errors.Is(err, repositories.ErrTransportError):
		return "Không gửi được bản ghi âm. Kiểm tra kết nối mạng, micro, hoặc nhập văn bản thay thế."
	case errors.Is(err, repositories.ErrRecognitionFailed):
		return "Không nhận dạng được giọng nói. Hãy nói rõ hơn hoặc nhập văn bản thay thế."
	default:
		return "Không thể truy cập micro. Vui lòng kiểm tra quyền truy cập micro của trình duyệt."
	}
}
