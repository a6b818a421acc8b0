// Package gateway is the WebSocket front door of the voice pipeline.
// Each connected client gets its own recorder, chat orchestrator, and
// playback manager; control traffic is JSON, microphone audio arrives
// as binary little-endian float32 frames, and synthesized audio leaves
// as binary frames.
package gateway

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tdnguyen-dev/healthvoice/domain/repositories"
	"github.com/tdnguyen-dev/healthvoice/internal/metrics"
	"github.com/tdnguyen-dev/healthvoice/internal/recorder"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames
)

// originChecker admits requests without an Origin header, same-host
// origins, and origins on the allowlist. A "*" entry disables the
// check entirely.
func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[strings.ToLower(strings.TrimSuffix(origin, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimSuffix(origin, "/"))]
		return ok
	}
}

// Hub maintains the set of active clients and the shared service
// dependencies each client session is built from.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	chatAPI     repositories.ChatAPI
	transcriber repositories.Transcriber
	synthesizer repositories.Synthesizer
	profile     repositories.ProfileRefresher
	recorderCfg recorder.Config

	upgrader websocket.Upgrader

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub. The synthesizer and profile
// refresher may be nil; the corresponding features degrade gracefully.
// allowedOrigins lists cross-origin hosts permitted to connect.
func NewHub(
	chatAPI repositories.ChatAPI,
	transcriber repositories.Transcriber,
	synthesizer repositories.Synthesizer,
	profile repositories.ProfileRefresher,
	recorderCfg recorder.Config,
	allowedOrigins []string,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		chatAPI:     chatAPI,
		transcriber: transcriber,
		synthesizer: synthesizer,
		profile:     profile,
		recorderCfg: recorderCfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			metrics.ActiveConnections.Inc()
			h.logger.Info("Client registered",
				zap.String("clientID", client.id),
				zap.String("profileID", client.profileID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				// send stays open; closing done tells every producer
				// and the write pump to stand down.
				close(client.done)
			}
			h.mu.Unlock()
			metrics.ActiveConnections.Dec()
			h.logger.Info("Client unregistered",
				zap.String("clientID", client.id),
				zap.String("profileID", client.profileID))
		}
	}
}

// WriteData is one outbound websocket write.
type WriteData struct {
	// Type is the websocket message type.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// HandleWebSocketWithAuth handles websocket requests with a
// pre-authenticated profile ID.
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, profileID string, logger *zap.Logger) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, profileID, logger)
	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
	go client.activate()

	return nil
}
