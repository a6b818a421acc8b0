// Package config loads the service configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tdnguyen-dev/healthvoice/adapters/chatapi"
	"github.com/tdnguyen-dev/healthvoice/adapters/synthesis"
	"github.com/tdnguyen-dev/healthvoice/adapters/transcription"
)

// ServerConfig holds the HTTP listener settings. AllowedOrigins lists
// cross-origin hosts permitted on the WebSocket endpoint; same-host
// connections are always accepted.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Validate checks the server section.
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Address returns the listen address.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AudioConfig holds the recording parameters.
type AudioConfig struct {
	SampleRate       int `yaml:"sample_rate"`
	FrameSize        int `yaml:"frame_size"`
	MaxRecordSeconds int `yaml:"max_record_seconds"`
}

// Validate checks the audio section.
func (c AudioConfig) Validate() error {
	if c.SampleRate <= 0 {
		return errors.New("sample_rate must be positive")
	}
	if c.FrameSize <= 0 {
		return errors.New("frame_size must be positive")
	}
	if c.MaxRecordSeconds <= 0 {
		return errors.New("max_record_seconds must be positive")
	}
	return nil
}

// TranscriptionConfig holds the recognition service settings. The API
// key comes from the environment, never the file.
type TranscriptionConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Validate checks the transcription section.
func (c TranscriptionConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	return nil
}

// SynthesisConfig selects the text-to-speech backend.
type SynthesisConfig struct {
	Backend string `yaml:"backend"`
}

// Validate checks the synthesis section.
func (c SynthesisConfig) Validate() error {
	switch c.Backend {
	case "azure", "mms", "none":
		return nil
	default:
		return fmt.Errorf("unknown synthesis backend %q", c.Backend)
	}
}

// ChatConfig holds the chat service settings. The token comes from the
// environment.
type ChatConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Validate checks the chat section.
func (c ChatConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	return nil
}

// LoggingConfig selects the log profile.
type LoggingConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// Validate checks the logging section.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
}

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Synthesis     SynthesisConfig     `yaml:"synthesis"`
	Chat          ChatConfig          `yaml:"chat"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate:       16000,
			FrameSize:        4096,
			MaxRecordSeconds: 120,
		},
		Synthesis: SynthesisConfig{Backend: "none"},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads the configuration file, if present, on top of the
// defaults and validates every section.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates every section.
func (c Config) Validate() error {
	sections := []struct {
		name string
		val  interface{ Validate() error }
	}{
		{"server", c.Server},
		{"audio", c.Audio},
		{"transcription", c.Transcription},
		{"synthesis", c.Synthesis},
		{"chat", c.Chat},
		{"logging", c.Logging},
	}

	for _, s := range sections {
		if err := s.val.Validate(); err != nil {
			return fmt.Errorf("config section %s: %w", s.name, err)
		}
	}
	return nil
}

// TranscriptionClientConfig assembles the transcription adapter
// configuration, pulling the API key from the environment.
func (c Config) TranscriptionClientConfig() transcription.Config {
	return transcription.Config{
		BaseURL: c.Transcription.BaseURL,
		APIKey:  os.Getenv("TRANSCRIPTION_API_KEY"),
	}
}

// ChatClientConfig assembles the chat adapter configuration, pulling
// the token from the environment.
func (c Config) ChatClientConfig() chatapi.Config {
	return chatapi.Config{
		BaseURL: c.Chat.BaseURL,
		Token:   os.Getenv("CHAT_API_TOKEN"),
	}
}

// BuildSynthesizer constructs the configured synthesis backend
// configuration. The caller instantiates the backend so it can attach
// its own logger.
func (c Config) BuildSynthesizer() (azure *synthesis.AzureConfig, mms *synthesis.MMSConfig) {
	switch c.Synthesis.Backend {
	case "azure":
		cfg := synthesis.NewAzureConfigFromEnv()
		return &cfg, nil
	case "mms":
		cfg := synthesis.NewMMSConfigFromEnv()
		return nil, &cfg
	default:
		return nil, nil
	}
}
