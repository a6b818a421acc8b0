// Package audio provides the sample buffer and WAV container codec for
// the recording pipeline. Recordings are 16 kHz mono float32 frames;
// the transcription contract requires a 44-byte-header PCM-16 WAV.
package audio
