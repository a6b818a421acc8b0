package audio

import (
	"errors"
	"sync"
)

// ErrBufferFull is returned when a frame would exceed the buffer's sample
// cap. The frame is dropped; recording stays usable.
var ErrBufferFull = errors.New("sample buffer full")

// SampleBuffer accumulates raw microphone frames for one recording.
//
// Frames are float32 amplitudes in [-1, 1] and must be appended in
// capture order; they are concatenated, never reordered. The buffer is
// bounded so an arbitrarily long press cannot grow memory without limit.
type SampleBuffer struct {
	mu         sync.Mutex
	frames     [][]float32
	total      int
	maxSamples int
	dropped    int
}

// NewSampleBuffer creates a buffer holding at most maxSamples samples.
// maxSamples <= 0 means unbounded.
func NewSampleBuffer(maxSamples int) *SampleBuffer {
	return &SampleBuffer{
		frames:     make([][]float32, 0, 64),
		maxSamples: maxSamples,
	}
}

// Append copies one capture frame into the buffer.
func (b *SampleBuffer) Append(frame []float32) error {
	if len(frame) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxSamples > 0 && b.total+len(frame) > b.maxSamples {
		b.dropped++
		return ErrBufferFull
	}

	copied := make([]float32, len(frame))
	copy(copied, frame)
	b.frames = append(b.frames, copied)
	b.total += len(frame)
	return nil
}

// Samples concatenates all frames into one contiguous run, in arrival
// order.
func (b *SampleBuffer) Samples() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]float32, 0, b.total)
	for _, frame := range b.frames {
		out = append(out, frame...)
	}
	return out
}

// Len returns the total number of buffered samples.
func (b *SampleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// FrameCount returns the number of appended frames.
func (b *SampleBuffer) FrameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Dropped returns the number of frames rejected by the cap.
func (b *SampleBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset releases all buffered frames.
func (b *SampleBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = b.frames[:0]
	b.total = 0
	b.dropped = 0
}
