package transcription

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
)

type scriptedTransport struct {
	name  string
	calls int
	res   *result
	err   error
}

func (t *scriptedTransport) Name() string { return t.name }

func (t *scriptedTransport) Submit(ctx context.Context, container []byte) (*result, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return t.res, nil
}

func sampleContainer() []byte {
	return make([]byte, 2048)
}

func TestTranscribeRejectsEmptyInput(t *testing.T) {
	primary := &scriptedTransport{name: "multipart"}
	client := newClientWithTransports(zaptest.NewLogger(t), primary)

	_, err := client.Transcribe(context.Background(), nil)
	if !errors.Is(err, repositories.ErrNoAudioData) {
		t.Errorf("Expected ErrNoAudioData, got %v", err)
	}
	if primary.calls != 0 {
		t.Errorf("No transport should be touched for empty input, got %d calls", primary.calls)
	}
}

func TestTranscribePrimarySuccess(t *testing.T) {
	primary := &scriptedTransport{
		name: "multipart",
		res:  &result{Success: true, Text: "tôi bị sốt nhẹ", Confidence: 0.87},
	}
	fallback := &scriptedTransport{name: "base64"}
	client := newClientWithTransports(zaptest.NewLogger(t), primary, fallback)

	got, err := client.Transcribe(context.Background(), sampleContainer())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got.Text != "tôi bị sốt nhẹ" {
		t.Errorf("Unexpected text %q", got.Text)
	}
	if got.PossiblyInaccurate {
		t.Error("Normal-length text should not be flagged")
	}
	if fallback.calls != 0 {
		t.Errorf("Fallback should be untouched after primary success, got %d calls", fallback.calls)
	}
}

func TestTranscribeFallsBackOnTransportFailure(t *testing.T) {
	primary := &scriptedTransport{
		name: "multipart",
		err:  &transportError{transport: "multipart", err: errors.New("connection refused")},
	}
	fallback := &scriptedTransport{
		name: "base64",
		res:  &result{Success: true, Text: "xin chào bác sĩ", Confidence: 0.9},
	}
	client := newClientWithTransports(zaptest.NewLogger(t), primary, fallback)

	got, err := client.Transcribe(context.Background(), sampleContainer())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got.Text != "xin chào bác sĩ" {
		t.Errorf("Unexpected text %q", got.Text)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("Expected one call per transport, got %d and %d", primary.calls, fallback.calls)
	}
}

func TestTranscribeNoFallbackOnServiceDecline(t *testing.T) {
	primary := &scriptedTransport{
		name: "multipart",
		res:  &result{Success: false, Error: "audio too noisy"},
	}
	fallback := &scriptedTransport{name: "base64"}
	client := newClientWithTransports(zaptest.NewLogger(t), primary, fallback)

	_, err := client.Transcribe(context.Background(), sampleContainer())
	if !errors.Is(err, repositories.ErrRecognitionFailed) {
		t.Errorf("Expected ErrRecognitionFailed, got %v", err)
	}
	if fallback.calls != 0 {
		t.Errorf("Service decline must not trigger fallback, got %d fallback calls", fallback.calls)
	}
}

func TestTranscribeAllTransportsDown(t *testing.T) {
	primary := &scriptedTransport{
		name: "multipart",
		err:  &transportError{transport: "multipart", err: errors.New("timeout")},
	}
	fallback := &scriptedTransport{
		name: "base64",
		err:  &transportError{transport: "base64", err: errors.New("connection reset")},
	}
	client := newClientWithTransports(zaptest.NewLogger(t), primary, fallback)

	_, err := client.Transcribe(context.Background(), sampleContainer())
	if !errors.Is(err, repositories.ErrTransportError) {
		t.Errorf("Expected ErrTransportError, got %v", err)
	}
}

func TestTranscribeFlagsLowContentResults(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"ờ", true},
		{"Um", true},
		{"ab", true},
		{"đau đầu", false},
		{"...", true},
	}

	for _, tc := range cases {
		primary := &scriptedTransport{
			name: "multipart",
			res:  &result{Success: true, Text: tc.text, Confidence: 0.5},
		}
		client := newClientWithTransports(zaptest.NewLogger(t), primary)

		got, err := client.Transcribe(context.Background(), sampleContainer())
		if err != nil {
			t.Fatalf("Transcribe(%q) failed: %v", tc.text, err)
		}
		if got.PossiblyInaccurate != tc.want {
			t.Errorf("Text %q: expected flagged=%v, got %v", tc.text, tc.want, got.PossiblyInaccurate)
		}
		if got.Text != tc.text {
			t.Errorf("Flagged text must travel onward unchanged, got %q", got.Text)
		}
	}
}

func TestMultipartTransportAgainstServer(t *testing.T) {
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("FormFile failed: %v", err)
		} else {
			file.Close()
			if header.Filename != "audio.wav" {
				t.Errorf("Expected filename audio.wav, got %q", header.Filename)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"text":"kiểm tra","confidence":0.95}`))
	}))
	defer server.Close()

	cfg := Config{BaseURL: server.URL, APIKey: "test-key"}
	client, err := NewClient(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	got, err := client.Transcribe(context.Background(), sampleContainer())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got.Text != "kiểm tra" {
		t.Errorf("Unexpected text %q", got.Text)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected bearer header, got %q", gotAuth)
	}
	if gotContentType == "" {
		t.Error("Missing multipart content type")
	}
}

func TestNon2xxIsServiceAnswerNotTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":"model unavailable"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Transcribe(context.Background(), sampleContainer())
	if !errors.Is(err, repositories.ErrRecognitionFailed) {
		t.Errorf("Expected ErrRecognitionFailed for non-2xx answer, got %v", err)
	}
	if errors.Is(err, repositories.ErrTransportError) {
		t.Error("Non-2xx answer must not be classified as a transport error")
	}
}
