package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the observer runs inside the provider's page
	},
}

// WSMessage is the envelope for every message on the event feed
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// signalReply acknowledges a signal received over the socket
type signalReply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// EventHub broadcasts scheduler events to connected operator clients.
// Progress events are throttled per worker; all other events pass through.
type EventHub struct {
	logger   arbor.ILogger
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.RWMutex
	interval time.Duration

	throttleMu sync.Mutex
	throttlers map[string]*rate.Limiter
}

// NewEventHub creates a hub. A zero interval disables progress throttling.
func NewEventHub(progressInterval time.Duration, logger arbor.ILogger) *EventHub {
	return &EventHub{
		logger:     logger,
		clients:    make(map[*websocket.Conn]*sync.Mutex),
		interval:   progressInterval,
		throttlers: make(map[string]*rate.Limiter),
	}
}

// Notify implements the scheduler notifier
func (h *EventHub) Notify(_ context.Context, event models.Event) {
	if event.Type == models.EventJobProgress && !h.allowProgress(event.WorkerID) {
		return
	}
	h.broadcast(WSMessage{Type: string(event.Type), Payload: event})
}

func (h *EventHub) allowProgress(workerID string) bool {
	if h.interval <= 0 {
		return true
	}
	h.throttleMu.Lock()
	defer h.throttleMu.Unlock()

	limiter, ok := h.throttlers[workerID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.interval), 1)
		h.throttlers[workerID] = limiter
	}
	return limiter.Allow()
}

func (h *EventHub) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mutex := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutexes[i].Lock()
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutexes[i].Unlock()
		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send event to client")
		}
	}
}

// HandleWebSocket serves the operator event feed
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("Event client connected")

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", remaining).Msg("Event client disconnected")
	}()

	// Read until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

// ClientCount returns the number of connected event clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
}

// handleSignalSocket accepts a stream of signals from the observer (GET /signals/ws)
func (s *Server) handleSignalSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade signal socket")
		return
	}
	defer conn.Close()

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("Observer connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("Signal socket error")
			}
			s.logger.Info().Str("remote", r.RemoteAddr).Msg("Observer disconnected")
			return
		}

		reply := signalReply{Status: "accepted"}
		var signal models.Signal
		if err := json.Unmarshal(data, &signal); err != nil {
			reply = signalReply{Status: "error", Error: "invalid signal payload"}
		} else if accepted, err := s.bus.Publish(r.Context(), signal, "websocket"); err != nil {
			reply = signalReply{Status: "error", Error: err.Error()}
		} else if !accepted {
			reply.Status = "duplicate"
		}

		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to acknowledge signal")
			return
		}
	}
}
