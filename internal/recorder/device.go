package recorder

import (
	"context"
	"sync"
)

// CaptureStream delivers microphone frames in strict capture order.
// Closing the stream stops delivery and releases the underlying capture
// resources.
type CaptureStream interface {
	// Frames returns the frame channel. The channel is closed when the
	// stream is closed or the source ends.
	Frames() <-chan []float32
	Close() error
}

// CaptureDevice grants access to a microphone-like audio source. Open
// fails when permission is denied or the environment lacks capture
// primitives.
type CaptureDevice interface {
	Open(ctx context.Context) (CaptureStream, error)
}

// ChannelCaptureStream adapts an externally fed frame channel to
// CaptureStream. The gateway uses it to turn a client's binary WebSocket
// frames into a capture source; tests feed it directly.
type ChannelCaptureStream struct {
	mu     sync.Mutex
	frames chan []float32
	closed bool
}

// NewChannelCaptureStream creates a stream with the given channel buffer.
func NewChannelCaptureStream(buffer int) *ChannelCaptureStream {
	return &ChannelCaptureStream{
		frames: make(chan []float32, buffer),
	}
}

// Push feeds one frame into the stream. It reports false once the stream
// is closed or the buffer is full; the frame is dropped in either case.
func (s *ChannelCaptureStream) Push(frame []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

// Frames returns the frame channel.
func (s *ChannelCaptureStream) Frames() <-chan []float32 {
	return s.frames
}

// Close stops delivery. Safe to call more than once.
func (s *ChannelCaptureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}
