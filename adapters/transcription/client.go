// Package transcription implements the speech-to-text client. Audio is
// submitted over an ordered list of transports; a later transport is
// tried only when the earlier one fails at the network level, never when
// the service itself declines the audio.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
)

// requestTimeout bounds one transport attempt end to end.
const requestTimeout = 30 * time.Second

// result is the service's recognition payload, shared by all transports.
type result struct {
	Success    bool    `json:"success"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// Transport submits one encoded container to the recognition service.
// A transport-level failure (connection refused, timeout, DNS) must be
// returned as a transportError so the client can fall back; an HTTP
// response, even a non-2xx one, is a service answer and must not be.
type Transport interface {
	Name() string
	Submit(ctx context.Context, container []byte) (*result, error)
}

// transportError marks failures that happened before the service could
// answer. Only these are eligible for fallback.
type transportError struct {
	transport string
	err       error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("transcription transport %s: %v", e.transport, e.err)
}

func (e *transportError) Unwrap() error { return e.err }

// noiseTokens are filler recognitions that carry no usable content. They
// are flagged, not dropped.
var noiseTokens = map[string]struct{}{
	"à":   {},
	"ờ":   {},
	"ừ":   {},
	"um":  {},
	"uh":  {},
	"hmm": {},
	"...": {},
}

// Config holds the recognition service endpoints and credentials.
type Config struct {
	BaseURL string
	APIKey  string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("transcription base URL is required")
	}
	return nil
}

// Client is the transcriber used by the recorder. Transports are tried
// in order; the first answer from the service wins.
type Client struct {
	transports []Transport
	logger     *zap.Logger
}

var _ repositories.Transcriber = (*Client)(nil)

// NewClient builds the standard client: multipart upload first, base64
// JSON as the network-failure fallback.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: requestTimeout}
	return &Client{
		transports: []Transport{
			newMultipartTransport(cfg, httpClient),
			newBase64Transport(cfg, httpClient),
		},
		logger: logger,
	}, nil
}

// newClientWithTransports exists for tests.
func newClientWithTransports(logger *zap.Logger, transports ...Transport) *Client {
	return &Client{transports: transports, logger: logger}
}

// Transcribe submits the container through the transport chain and maps
// the service answer to the failure taxonomy.
func (c *Client) Transcribe(ctx context.Context, container []byte) (*repositories.Transcription, error) {
	if len(container) == 0 {
		return nil, repositories.ErrNoAudioData
	}

	res, err := c.submit(ctx, container)
	if err != nil {
		return nil, err
	}

	if !res.Success {
		if res.Error != "" {
			return nil, fmt.Errorf("%w: %s", repositories.ErrRecognitionFailed, res.Error)
		}
		return nil, repositories.ErrRecognitionFailed
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty result", repositories.ErrRecognitionFailed)
	}

	return &repositories.Transcription{
		Text:               text,
		Confidence:         res.Confidence,
		PossiblyInaccurate: looksInaccurate(text),
	}, nil
}

// submit walks the transport chain. A service answer, success or not,
// ends the walk; only network-level failures advance it.
func (c *Client) submit(ctx context.Context, container []byte) (*result, error) {
	var lastErr error
	for i, transport := range c.transports {
		res, err := transport.Submit(ctx, container)
		if err == nil {
			if i > 0 {
				c.logger.Info("transcription fallback transport succeeded",
					zap.String("transport", transport.Name()))
			}
			return res, nil
		}

		var te *transportError
		if !errors.As(err, &te) {
			return nil, err
		}

		c.logger.Warn("transcription transport failed",
			zap.String("transport", transport.Name()),
			zap.Error(err))
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", repositories.ErrTransportError, lastErr)
}

// looksInaccurate flags recognitions that are too short or consist of a
// known filler token.
func looksInaccurate(text string) bool {
	lowered := strings.ToLower(text)
	if _, ok := noiseTokens[lowered]; ok {
		return true
	}
	return utf8.RuneCountInString(text) < 3
}
