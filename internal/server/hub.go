package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/volbot/volcluster/pkg/logger"
)

// CycleEvent is the wire shape pushed to websocket subscribers after every
// cycle attempt, success or failure.
type CycleEvent struct {
	Type           string  `json:"type"`
	BotID          string  `json:"bot_id"`
	Status         string  `json:"status"`
	Kind           string  `json:"kind,omitempty"`
	Error          string  `json:"error,omitempty"`
	Signature      string  `json:"signature,omitempty"`
	Executor       string  `json:"executor,omitempty"`
	AmountSOL      float64 `json:"amount_sol,omitempty"`
	VolumeEstimate float64 `json:"volume_estimate,omitempty"`
	Timestamp      int64   `json:"timestamp"`
}

// Hub maintains the set of active websocket clients and broadcasts events.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	upgrader  websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local operator UI, no cross-origin policy
			},
		},
	}
}

// HandleWebSocket manages the connection lifecycle. Incoming messages are not
// processed; the read loop exists to detect disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("websocket upgrade: %v", err)
		return
	}

	h.register(conn)
	defer func() {
		h.unregister(conn)
		conn.Close()
	}()

	const (
		writeWait      = 10 * time.Second
		pongWait       = 60 * time.Second
		pingPeriod     = (pongWait * 9) / 10
		maxMessageSize = 512
	)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[conn] = true
	logger.Debugf("event client connected, total %d", len(h.clients))
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		logger.Debugf("event client disconnected, total %d", len(h.clients))
	}
}

// Broadcast pushes an event to every connected client. Dead connections are
// dropped in place.
func (h *Hub) Broadcast(ev CycleEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("event marshal: %v", err)
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}
