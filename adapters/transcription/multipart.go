package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// multipartTransport uploads the container as a multipart form file.
// This is the primary transport.
type multipartTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func newMultipartTransport(cfg Config, client *http.Client) *multipartTransport {
	return &multipartTransport{
		endpoint: cfg.BaseURL + "/api/transcribe",
		apiKey:   cfg.APIKey,
		client:   client,
	}
}

func (t *multipartTransport) Name() string { return "multipart" }

func (t *multipartTransport) Submit(ctx context.Context, container []byte) (*result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(container); err != nil {
		return nil, fmt.Errorf("writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
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

// decodeResult maps an HTTP response to a recognition result. Non-2xx
// statuses are service answers: they become failed results, never
// transport errors.
func decodeResult(transport string, resp *http.Response) (*result, error) {
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &transportError{transport: transport, err: err}
	}

	var res result
	if err := json.Unmarshal(payload, &res); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &result{Success: false, Error: fmt.Sprintf("status %d", resp.StatusCode)}, nil
		}
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if !res.Success && res.Error == "" && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		res.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return &res, nil
}
