package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/sessions"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	wsWriteTimeout = 5 * time.Second
	wsQueueSize    = 256 // Frames buffered per client before it is treated as stalled
)

// WSMessage is the envelope of every websocket frame
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// wsClient owns one connection. Frames are queued in event order and written
// by a single writer goroutine, so a client sees events in publish order.
type wsClient struct {
	sessionID string
	out       chan WSMessage
	throttle  *rate.Limiter // nil = unthrottled
}

// WebSocketHandler pushes job events to the browser tabs of the owning session.
// Pushes are hints; polling stays the source of truth for progress.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*wsClient
	mu               sync.RWMutex
	eventService     interfaces.EventService
	progressThrottle time.Duration
	serverInstanceID string // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, progressThrottle time.Duration) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*wsClient),
		eventService:     eventService,
		progressThrottle: progressThrottle,
		serverInstanceID: uuid.New().String(),
	}

	logger.Debug().
		Str("server_instance_id", h.serverInstanceID).
		Dur("progress_throttle", progressThrottle).
		Msg("WebSocket handler initialized")

	if eventService != nil {
		h.SubscribeToJobEvents()
	}

	return h
}

// SubscribeToJobEvents forwards job and session events to connected clients
func (h *WebSocketHandler) SubscribeToJobEvents() {
	eventTypes := []interfaces.EventType{
		interfaces.EventJobStarted,
		interfaces.EventJobProgress,
		interfaces.EventJobStage,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventJobAcknowledged,
		interfaces.EventSessionExpired,
	}
	for _, eventType := range eventTypes {
		if err := h.eventService.Subscribe(eventType, h.handleEvent); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe websocket handler")
		}
	}
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		return nil
	}
	sessionID, _ := payload["session_id"].(string)
	if sessionID == "" {
		return nil
	}

	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		// The record duplicates the payload; the session id is the caller's cookie
		if k == "record" || k == "session_id" {
			continue
		}
		out[k] = v
	}

	h.BroadcastToSession(sessionID, WSMessage{Type: string(event.Type), Payload: out}, event.Type == interfaces.EventJobProgress)
	return nil
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if s, ok := sessions.FromContext(r.Context()); ok {
		sessionID = s.ID
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{
		sessionID: sessionID,
		out:       make(chan WSMessage, wsQueueSize),
	}
	if h.progressThrottle > 0 {
		client.throttle = rate.NewLimiter(rate.Every(h.progressThrottle), 1)
	}

	// Queue hello before the client becomes visible to broadcasts
	client.out <- WSMessage{
		Type:    "hello",
		Payload: map[string]string{"server_instance_id": h.serverInstanceID},
	}

	h.mu.Lock()
	h.clients[conn] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	go h.writePump(conn, client)

	h.logger.Debug().Str("session_id", sessionID).Int("clients", clientCount).Msg("WebSocket client connected")

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		close(client.out)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("remaining", clientCount).Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// BroadcastToSession queues msg for every client of sessionID. Throttled
// messages are dropped for clients over their progress rate. A client whose
// queue is full is disconnected; it reconnects and resumes by polling.
func (h *WebSocketHandler) BroadcastToSession(sessionID string, msg WSMessage, throttled bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, c := range h.clients {
		if c.sessionID != sessionID {
			continue
		}
		if throttled && c.throttle != nil && !c.throttle.Allow() {
			continue
		}
		select {
		case c.out <- msg:
		default:
			if throttled {
				continue
			}
			h.logger.Warn().Str("type", msg.Type).Msg("WebSocket client stalled, disconnecting")
			conn.Close()
		}
	}
}

// writePump is the only writer of conn. It runs until the client's queue is closed.
func (h *WebSocketHandler) writePump(conn *websocket.Conn, c *wsClient) {
	failed := false
	for msg := range c.out {
		if failed {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send websocket message")
			failed = true
			conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
