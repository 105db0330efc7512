// Package realtime pushes per-user job progress events over websockets.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub tracks websocket connections per user and implements jobctx.Emitter.
// A user with no open connection simply misses the event; jobs never block
// on the progress channel.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]map[*websocket.Conn]struct{}
	writeMu  sync.Mutex // gorilla allows one concurrent writer per conn
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// envelope is the wire format of every pushed event.
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns: make(map[string]map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy belongs to the auth layer in front of this service.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeWS upgrades the request and registers the connection under the userId
// query parameter until the peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.register(userID, conn)
	h.log.Info("progress channel connected", zap.String("userId", userID))

	go func() {
		defer func() {
			h.unregister(userID, conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Emit pushes an event to every open connection of userID.
func (h *Hub) Emit(userID, event string, payload interface{}) {
	body, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		h.log.Error("failed to marshal progress event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.conns[userID]))
	for conn := range h.conns[userID] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, conn := range targets {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			h.log.Debug("dropping dead progress connection",
				zap.String("userId", userID), zap.Error(err))
			h.unregister(userID, conn)
			conn.Close()
		}
	}
}

func (h *Hub) register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
}

func (h *Hub) unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.conns[userID]; set != nil {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
}
