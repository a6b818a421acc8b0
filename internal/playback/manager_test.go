package playback

import (
	"bytes"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakePlayer struct {
	mu       sync.Mutex
	started  int
	stopped  int
	onDone   func(error)
	startErr error
}

func (p *fakePlayer) Start(onDone func(err error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.started++
	p.onDone = onDone
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
}

func (p *fakePlayer) finish(err error) {
	p.mu.Lock()
	done := p.onDone
	p.mu.Unlock()
	done(err)
}

func (p *fakePlayer) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func TestToggleStartsAndStops(t *testing.T) {
	mgr := NewManager(zaptest.NewLogger(t))
	player := &fakePlayer{}

	if err := mgr.Toggle("msg-1", player); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if mgr.Playing() != "msg-1" {
		t.Errorf("Expected msg-1 playing, got %q", mgr.Playing())
	}

	// Toggling the same control stops the clip.
	if err := mgr.Toggle("msg-1", &fakePlayer{}); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if mgr.Playing() != "" {
		t.Errorf("Toggle-to-stop should clear the singleton, got %q", mgr.Playing())
	}
	if player.stopCount() != 1 {
		t.Errorf("Expected player stopped once, got %d", player.stopCount())
	}
}

func TestToggleReplacesActivePlayer(t *testing.T) {
	mgr := NewManager(zaptest.NewLogger(t))
	first := &fakePlayer{}
	second := &fakePlayer{}

	if err := mgr.Toggle("msg-1", first); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if err := mgr.Toggle("msg-2", second); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	if first.stopCount() != 1 {
		t.Errorf("First player should be stopped when replaced, got %d stops", first.stopCount())
	}
	if mgr.Playing() != "msg-2" {
		t.Errorf("Expected msg-2 playing, got %q", mgr.Playing())
	}
}

func TestNaturalEndClearsSingleton(t *testing.T) {
	mgr := NewManager(zaptest.NewLogger(t))
	player := &fakePlayer{}

	var events []string
	mgr.OnControlChange(func(controlID string, active bool) {
		if active {
			events = append(events, controlID+":on")
		} else {
			events = append(events, controlID+":off")
		}
	})

	if err := mgr.Toggle("msg-1", player); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	player.finish(nil)

	if mgr.Playing() != "" {
		t.Errorf("Natural end should clear the singleton, got %q", mgr.Playing())
	}
	if len(events) != 2 || events[0] != "msg-1:on" || events[1] != "msg-1:off" {
		t.Errorf("Unexpected control events: %v", events)
	}
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	mgr := NewManager(zaptest.NewLogger(t))
	first := &fakePlayer{}
	second := &fakePlayer{}

	if err := mgr.Toggle("msg-1", first); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if err := mgr.Toggle("msg-2", second); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	// A late callback from the replaced player must not clear the new
	// clip.
	first.finish(nil)

	if mgr.Playing() != "msg-2" {
		t.Errorf("Stale completion cleared the active clip, got %q", mgr.Playing())
	}
}

func TestPlaybackErrorResetsControl(t *testing.T) {
	mgr := NewManager(zaptest.NewLogger(t))
	mgr.errorResetDelay = 10 * time.Millisecond
	player := &fakePlayer{}

	var mu sync.Mutex
	var lastEvent string
	mgr.OnControlChange(func(controlID string, active bool) {
		mu.Lock()
		defer mu.Unlock()
		if active {
			lastEvent = controlID + ":on"
		} else {
			lastEvent = controlID + ":off"
		}
	})

	if err := mgr.Toggle("msg-1", player); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	player.finish(errors.New("decode failure"))

	if mgr.Playing() != "" {
		t.Errorf("Failed playback should clear the singleton, got %q", mgr.Playing())
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		ev := lastEvent
		mu.Unlock()
		if ev == "msg-1:off" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Control never reset after playback error, last event %q", ev)
		}
		time.Sleep(time.Millisecond)
	}
}

type collectSink struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error
}

func (s *collectSink) WriteAudioChunk(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *collectSink) joined() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Join(s.chunks, nil)
}

func TestDataURLPlayerStreamsPayload(t *testing.T) {
	payload := make([]byte, 40*1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	dataURL := "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(payload)

	sink := &collectSink{}
	player := NewDataURLPlayer(dataURL, sink)

	done := make(chan error, 1)
	if err := player.Start(func(err error) { done <- err }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Playback failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Playback did not complete")
	}

	if !bytes.Equal(sink.joined(), payload) {
		t.Error("Streamed chunks do not reassemble to the original payload")
	}
}

func TestDataURLPlayerRejectsMalformedURL(t *testing.T) {
	cases := []string{
		"",
		"https://example.com/audio.mp3",
		"data:audio/mpeg,not-base64-marker",
		"data:audio/mpeg;base64,!!!",
		"data:audio/mpeg;base64,",
	}

	for _, dataURL := range cases {
		player := NewDataURLPlayer(dataURL, &collectSink{})
		if err := player.Start(func(error) {}); err == nil {
			t.Errorf("Expected decode failure for %q", dataURL)
		}
	}
}
