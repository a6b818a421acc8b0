package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// base64Transport submits the container as base64 inside a JSON body.
// It exists as the fallback for environments where multipart uploads
// are blocked by intermediaries.
type base64Transport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func newBase64Transport(cfg Config, client *http.Client) *base64Transport {
	return &base64Transport{
		endpoint: cfg.BaseURL + "/api/transcribe/base64",
		apiKey:   cfg.APIKey,
		client:   client,
	}
}

func (t *base64Transport) Name() string { return "base64" }

func (t *base64Transport) Submit(ctx context.Context, container []byte) (*result, error) {
	payload, err := json.Marshal(map[string]string{
		"audio_data": base64.StdEncoding.EncodeToString(container),
		"mime_type":  "audio/wav",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &transportError{transport: t.Name(), err: err}
	}
	defer resp.Body.Close()

	return decodeResult(t.Name(), resp)
}
