package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
	"github.com/tdnguyen-dev/healthvoice/internal/audio"
)

type fakeDevice struct {
	mu     sync.Mutex
	stream *ChannelCaptureStream
	err    error
	opens  int
}

func (d *fakeDevice) Open(ctx context.Context) (CaptureStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type fakeTranscriber struct {
	mu     sync.Mutex
	calls  int
	result *repositories.Transcription
	err    error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, wavData []byte) (*repositories.Transcription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestController(t *testing.T, device CaptureDevice, transcriber repositories.Transcriber) *Controller {
	t.Helper()
	return NewController(DefaultConfig(), device, transcriber, zaptest.NewLogger(t))
}

func TestStopWhileIdleIsNoOp(t *testing.T) {
	device := &fakeDevice{stream: NewChannelCaptureStream(8)}
	transcriber := &fakeTranscriber{}
	ctrl := newTestController(t, device, transcriber)

	transcription, err := ctrl.Stop(context.Background())
	if err != nil {
		t.Errorf("Stop while idle should be a no-op, got error %v", err)
	}
	if transcription != nil {
		t.Errorf("Stop while idle should return nil transcription")
	}
	if transcriber.callCount() != 0 {
		t.Errorf("Transcriber should not be called, got %d calls", transcriber.callCount())
	}
	if ctrl.State() != StateIdle {
		t.Errorf("Expected idle state, got %v", ctrl.State())
	}
}

func TestStartWhileActiveIsIgnored(t *testing.T) {
	device := &fakeDevice{stream: NewChannelCaptureStream(8)}
	ctrl := newTestController(t, device, &fakeTranscriber{})

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if ctrl.State() != StateRecording {
		t.Fatalf("Expected recording state, got %v", ctrl.State())
	}

	if err := ctrl.Start(context.Background()); err != nil {
		t.Errorf("Second start should be ignored, got error %v", err)
	}

	device.mu.Lock()
	opens := device.opens
	device.mu.Unlock()
	if opens != 1 {
		t.Errorf("Device should be opened once, got %d opens", opens)
	}
}

func TestDeviceFailureEntersErrorState(t *testing.T) {
	device := &fakeDevice{err: errors.New("permission denied")}
	ctrl := newTestController(t, device, &fakeTranscriber{})

	if err := ctrl.Start(context.Background()); err == nil {
		t.Fatal("Expected error when device open fails")
	}
	if ctrl.State() != StateError {
		t.Errorf("Expected error state, got %v", ctrl.State())
	}

	ctrl.Reset()
	if ctrl.State() != StateIdle {
		t.Errorf("Reset should return to idle, got %v", ctrl.State())
	}
	if ctrl.Err() != nil {
		t.Errorf("Reset should clear the error, got %v", ctrl.Err())
	}
}

func TestUndersizedAudioNeverReachesTranscriber(t *testing.T) {
	stream := NewChannelCaptureStream(8)
	device := &fakeDevice{stream: stream}
	transcriber := &fakeTranscriber{}
	ctrl := newTestController(t, device, transcriber)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Fewer samples than the minimum payload requires.
	stream.Push(make([]float32, 10))

	_, err := ctrl.Stop(context.Background())
	if !errors.Is(err, repositories.ErrNoAudioData) {
		t.Errorf("Expected ErrNoAudioData, got %v", err)
	}
	if transcriber.callCount() != 0 {
		t.Errorf("Transcriber should not be invoked for invalid audio, got %d calls", transcriber.callCount())
	}
	if ctrl.State() != StateError {
		t.Errorf("Expected error state, got %v", ctrl.State())
	}
}

func TestSuccessfulSessionLifecycle(t *testing.T) {
	stream := NewChannelCaptureStream(8)
	device := &fakeDevice{stream: stream}
	transcriber := &fakeTranscriber{
		result: &repositories.Transcription{Text: "tôi bị đau đầu", Confidence: 0.92},
	}
	ctrl := newTestController(t, device, transcriber)

	var states []State
	ctrl.OnStateChange(func(s State) {
		states = append(states, s)
	})

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame := make([]float32, audio.MinPayloadBytes)
	for i := range frame {
		frame[i] = 0.3
	}
	if !stream.Push(frame) {
		t.Fatal("Push failed on open stream")
	}

	transcription, err := ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if transcription == nil || transcription.Text != "tôi bị đau đầu" {
		t.Errorf("Unexpected transcription: %+v", transcription)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("Expected idle after completion, got %v", ctrl.State())
	}

	expected := []State{StateAcquiring, StateRecording, StateEncoding, StateTranscribing, StateIdle}
	if len(states) != len(expected) {
		t.Fatalf("Expected state sequence %v, got %v", expected, states)
	}
	for i := range expected {
		if states[i] != expected[i] {
			t.Errorf("State %d: expected %v, got %v", i, expected[i], states[i])
		}
	}
}

func TestPressHoldCapturesFramesInOrder(t *testing.T) {
	stream := NewChannelCaptureStream(8)
	device := &fakeDevice{stream: stream}
	transcriber := &fakeTranscriber{
		result: &repositories.Transcription{Text: "tôi bị tiểu đường", Confidence: 0.92},
	}
	ctrl := newTestController(t, device, transcriber)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// One second at 16 kHz with 4096-sample frames: four frames.
	for i := 0; i < 4; i++ {
		frame := make([]float32, 4096)
		for j := range frame {
			frame[j] = float32(i+1) / 10
		}
		if !stream.Push(frame) {
			t.Fatalf("Push %d failed", i)
		}
	}

	transcription, err := ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if transcription.Text != "tôi bị tiểu đường" {
		t.Errorf("Unexpected transcription %q", transcription.Text)
	}
	if transcriber.callCount() != 1 {
		t.Errorf("Transcriber should be invoked exactly once, got %d calls", transcriber.callCount())
	}
}

func TestTranscriberFailureEntersErrorState(t *testing.T) {
	stream := NewChannelCaptureStream(8)
	device := &fakeDevice{stream: stream}
	transcriber := &fakeTranscriber{err: repositories.ErrRecognitionFailed}
	ctrl := newTestController(t, device, transcriber)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	stream.Push(make([]float32, audio.MinPayloadBytes))

	_, err := ctrl.Stop(context.Background())
	if !errors.Is(err, repositories.ErrRecognitionFailed) {
		t.Errorf("Expected ErrRecognitionFailed, got %v", err)
	}
	if ctrl.State() != StateError {
		t.Errorf("Expected error state, got %v", ctrl.State())
	}

	// A fresh press clears the previous failure.
	device.mu.Lock()
	device.stream = NewChannelCaptureStream(8)
	device.mu.Unlock()
	if err := ctrl.Start(context.Background()); err != nil {
		t.Errorf("Start after error should succeed, got %v", err)
	}
	if ctrl.State() != StateRecording {
		t.Errorf("Expected recording state, got %v", ctrl.State())
	}
}

func TestUserMessagePerErrorClass(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{repositories.ErrNoAudioData, "Không thu được âm thanh. Hãy giữ nút ghi âm và nói rõ hơn."},
		{repositories.ErrTransportError, "Không gửi được bản ghi âm. Kiểm tra kết nối mạng, micro, hoặc nhập văn bản thay thế."},
		{repositories.ErrRecognitionFailed, "Không nhận dạng được giọng nói. Hãy nói rõ hơn hoặc nhập văn bản thay thế."},
		{errors.New("device busy"), "Không thể truy cập micro. Vui lòng kiểm tra quyền truy cập micro của trình duyệt."},
	}

	for _, tc := range cases {
		if got := UserMessage(tc.err); got != tc.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}

	if got := UserMessage(nil); got != "" {
		t.Errorf("UserMessage(nil) should be empty, got %q", got)
	}
}
