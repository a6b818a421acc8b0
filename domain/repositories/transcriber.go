package repositories

import (
	"context"
	"errors"
)

// Failure taxonomy for transcription. Callers distinguish these with
// errors.Is so the surfaced remediation text can differ per class.
var (
	// ErrNoAudioData means the recording produced no usable audio; no
	// network call was attempted.
	ErrNoAudioData = errors.New("no audio data")

	// ErrTransportError means every transport failed at the network level.
	ErrTransportError = errors.New("transcription transport error")

	// ErrRecognitionFailed means the service responded but declined to
	// produce text.
	ErrRecognitionFailed = errors.New("recognition failed")
)

// Transcription is a recognized utterance.
//
// Low-confidence results are flagged, never dropped: the caller decides
// how to annotate them, but they always travel onward as a user message.
type Transcription struct {
	Text               string  `json:"text"`
	Confidence         float64 `json:"confidence"`
	PossiblyInaccurate bool    `json:"possibly_inaccurate"`
}

// Transcriber converts an encoded audio container to text.
type Transcriber interface {
	Transcribe(ctx context.Context, container []byte) (*Transcription, error)
}
