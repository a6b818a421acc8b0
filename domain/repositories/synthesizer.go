package repositories

import "context"

// Speech is the result of a synthesis request: a ready-to-play audio
// resource encoded as a data URL.
type Speech struct {
	AudioDataURL string `json:"audio_data_url"`
}

// Synthesizer abstracts a text-to-speech backend. Two interchangeable
// backends exist; exclusive playback is enforced elsewhere and is
// backend-agnostic.
type Synthesizer interface {
	Generate(ctx context.Context, text string) (*Speech, error)
	Name() string
}
