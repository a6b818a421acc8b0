package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
)

// defaultMMSModel is the Vietnamese MMS text-to-speech model.
const defaultMMSModel = "facebook/mms-tts-vie"

// MMSConfig holds the settings for the self-hosted MMS synthesis
// service. This backend is the no-cloud-account alternative to Azure.
type MMSConfig struct {
	BaseURL string
	Model   string
}

// NewMMSConfigFromEnv reads the MMS settings from the environment.
func NewMMSConfigFromEnv() MMSConfig {
	model := os.Getenv("MMS_TTS_MODEL")
	if model == "" {
		model = defaultMMSModel
	}
	return MMSConfig{
		BaseURL: os.Getenv("MMS_TTS_URL"),
		Model:   model,
	}
}

// Validate checks the configuration.
func (c MMSConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("mms base URL is required")
	}
	return nil
}

// MMSSynthesizer generates speech through an MMS serving endpoint. The
// service returns base64 WAV which is wrapped as a data URL here. MMS
// synthesis is noticeably slower than Azure, so deployments that can use
// Azure should.
type MMSSynthesizer struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

var _ repositories.Synthesizer = (*MMSSynthesizer)(nil)

// NewMMSSynthesizer creates the MMS backend.
func NewMMSSynthesizer(cfg MMSConfig, logger *zap.Logger) (*MMSSynthesizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = defaultMMSModel
	}

	return &MMSSynthesizer{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: 2 * synthesisTimeout},
		logger:  logger,
	}, nil
}

func (s *MMSSynthesizer) Name() string { return "mms" }

type mmsResponse struct {
	Success   bool   `json:"success"`
	AudioData string `json:"audio_data"`
	Error     string `json:"error,omitempty"`
}

// Generate synthesizes the text and returns the audio as a WAV data URL.
func (s *MMSSynthesizer) Generate(ctx context.Context, text string) (*repositories.Speech, error) {
	if text == "" {
		return nil, errors.New("synthesis text is empty")
	}

	payload, err := json.Marshal(map[string]string{
		"text":  text,
		"model": s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mms request: %w", err)
	}
	defer resp.Body.Close()

	var res mmsResponse
	if err := decodeJSON(resp, &res); err != nil {
		return nil, err
	}
	if !res.Success || res.AudioData == "" {
		if res.Error != "" {
			return nil, fmt.Errorf("mms synthesis failed: %s", res.Error)
		}
		return nil, fmt.Errorf("mms synthesis failed with status %d", resp.StatusCode)
	}

	s.logger.Debug("synthesized speech",
		zap.String("backend", s.Name()),
		zap.String("model", s.model),
		zap.Duration("elapsed", time.Since(start)))

	return &repositories.Speech{
		AudioDataURL: "data:audio/wav;base64," + res.AudioData,
	}, nil
}
