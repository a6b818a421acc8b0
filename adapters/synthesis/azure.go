// Package synthesis implements the text-to-speech backends. Both
// backends produce a playable data URL so playback never needs a second
// fetch; which one serves a given deployment is a configuration choice.
package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
)

const synthesisTimeout = 30 * time.Second

// defaultAzureVoice is the Vietnamese neural voice used for responses.
const defaultAzureVoice = "vi-VN-HoaiMyNeural"

// AzureConfig holds the Azure Speech service settings.
type AzureConfig struct {
	Region string
	Key    string
	Voice  string
}

// NewAzureConfigFromEnv reads the Azure settings from the environment.
func NewAzureConfigFromEnv() AzureConfig {
	voice := os.Getenv("AZURE_SPEECH_VOICE")
	if voice == "" {
		voice = defaultAzureVoice
	}
	return AzureConfig{
		Region: os.Getenv("AZURE_SPEECH_REGION"),
		Key:    os.Getenv("AZURE_SPEECH_KEY"),
		Voice:  voice,
	}
}

// Validate checks the configuration.
func (c AzureConfig) Validate() error {
	if c.Region == "" {
		return errors.New("azure speech region is required")
	}
	if c.Key == "" {
		return errors.New("azure speech key is required")
	}
	return nil
}

// AzureSynthesizer generates speech through the Azure Speech REST API.
type AzureSynthesizer struct {
	endpoint string
	key      string
	voice    string
	client   *http.Client
	logger   *zap.Logger
}

var _ repositories.Synthesizer = (*AzureSynthesizer)(nil)

// NewAzureSynthesizer creates the Azure backend.
func NewAzureSynthesizer(cfg AzureConfig, logger *zap.Logger) (*AzureSynthesizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultAzureVoice
	}

	return &AzureSynthesizer{
		endpoint: fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", cfg.Region),
		key:      cfg.Key,
		voice:    cfg.Voice,
		client:   &http.Client{Timeout: synthesisTimeout},
		logger:   logger,
	}, nil
}

func (s *AzureSynthesizer) Name() string { return "azure" }

// Generate synthesizes the text and returns the audio as an MP3 data
// URL.
func (s *AzureSynthesizer) Generate(ctx context.Context, text string) (*repositories.Speech, error) {
	if text == "" {
		return nil, errors.New("synthesis text is empty")
	}

	ssml := buildSSML(s.voice, text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader([]byte(ssml)))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", "audio-16khz-64kbitrate-mono-mp3")
	req.Header.Set("Ocp-Apim-Subscription-Key", s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("azure speech status %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("azure speech returned no audio")
	}

	s.logger.Debug("synthesized speech",
		zap.String("backend", s.Name()),
		zap.Int("bytes", len(audio)))

	return &repositories.Speech{
		AudioDataURL: "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(audio),
	}, nil
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// buildSSML wraps the text in the minimal SSML envelope the service
// expects.
func buildSSML(voice, text string) string {
	return fmt.Sprintf(
		`<speak version="1.0" xml:lang="vi-VN"><voice name="%s">%s</voice></speak>`,
		voice, ssmlEscaper.Replace(text))
}

// decodeJSON is shared by the JSON-speaking backends.
func decodeJSON(resp *http.Response, v interface{}) error {
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
