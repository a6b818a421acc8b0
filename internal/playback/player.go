package playback

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// AudioSink receives decoded audio chunks. The gateway implements it by
// forwarding chunks to the client as binary WebSocket frames.
type AudioSink interface {
	WriteAudioChunk(data []byte) error
}

// defaultChunkSize keeps individual sink writes small enough for
// interleaving with control traffic.
const defaultChunkSize = 16 * 1024

var errDataURLFormat = errors.New("malformed audio data URL")

// DataURLPlayer plays a base64 audio data URL by streaming decoded
// chunks to a sink. The synthesis services return their output in this
// form so it can be handed to a client without a second fetch.
type DataURLPlayer struct {
	dataURL   string
	sink      AudioSink
	chunkSize int

	mu      sync.Mutex
	stopped bool
}

// NewDataURLPlayer creates a player for one data URL clip.
func NewDataURLPlayer(dataURL string, sink AudioSink) *DataURLPlayer {
	return &DataURLPlayer{
		dataURL:   dataURL,
		sink:      sink,
		chunkSize: defaultChunkSize,
	}
}

var _ Player = (*DataURLPlayer)(nil)

// Start decodes the data URL and streams it asynchronously. Decode
// failures are reported synchronously; sink failures arrive via onDone.
func (p *DataURLPlayer) Start(onDone func(err error)) error {
	payload, err := decodeDataURL(p.dataURL)
	if err != nil {
		return err
	}

	go func() {
		for offset := 0; offset < len(payload); offset += p.chunkSize {
			p.mu.Lock()
			stopped := p.stopped
			p.mu.Unlock()
			if stopped {
				return
			}

			end := offset + p.chunkSize
			if end > len(payload) {
				end = len(payload)
			}
			if err := p.sink.WriteAudioChunk(payload[offset:end]); err != nil {
				onDone(fmt.Errorf("writing audio chunk: %w", err))
				return
			}
		}

		p.mu.Lock()
		stopped := p.stopped
		p.mu.Unlock()
		if !stopped {
			onDone(nil)
		}
	}()

	return nil
}

// Stop interrupts streaming. The completion callback is suppressed.
func (p *DataURLPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// decodeDataURL extracts the base64 payload from a data URL of the form
// data:<mime>;base64,<payload>.
func decodeDataURL(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, errDataURLFormat
	}

	idx := strings.Index(dataURL, ";base64,")
	if idx < 0 {
		return nil, errDataURLFormat
	}

	payload, err := base64.StdEncoding.DecodeString(dataURL[idx+len(";base64,"):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errDataURLFormat, err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", errDataURLFormat)
	}
	return payload, nil
}
