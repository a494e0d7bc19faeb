package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/classpoll/livepoll/internal/models"
)

// HubConfig holds configuration for WebSocket observer connections.
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultHubConfig returns the default WebSocket configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Hub pushes each new snapshot to every connected WebSocket observer.
// Observers are read-only: commands arrive over the HTTP API, so inbound
// WebSocket messages are ignored beyond keepalive bookkeeping.
type Hub struct {
	mu          sync.RWMutex
	connections map[*observerConn]bool
	upgrader    websocket.Upgrader
	config      HubConfig
	broadcastCh chan models.SessionState

	// snapshot returns the state to seed a freshly connected observer with.
	snapshot func() models.SessionState
}

type observerConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates a hub. snapshot seeds each new connection with the current
// state so late joiners render immediately instead of waiting for the next
// command.
func NewHub(config HubConfig, snapshot func() models.SessionState) *Hub {
	return &Hub{
		connections: make(map[*observerConn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan models.SessionState, 64),
		snapshot:    snapshot,
	}
}

// Start processes queued snapshots until the context is cancelled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("websocket hub shutting down")
			return
		case state := <-h.broadcastCh:
			h.fanOut(state)
		}
	}
}

// Publish queues a snapshot for delivery to every observer. It implements
// the engine's Publisher so local commits reach browser tabs on this replica
// through the same path external broadcasts do.
func (h *Hub) Publish(_ context.Context, state models.SessionState) error {
	select {
	case h.broadcastCh <- state:
	default:
		log.Warn().Msg("hub broadcast channel full, dropping snapshot")
	}
	return nil
}

// HandleConnection upgrades an HTTP request to a WebSocket observer.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	oc := &observerConn{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
		hub:  h,
	}
	h.register(oc)

	if h.snapshot != nil {
		if data, err := models.EncodeSnapshot(h.snapshot()); err == nil {
			oc.send <- data
		}
	}

	go oc.writePump()
	go oc.readPump()

	log.Info().Str("connection_id", oc.id).Msg("observer connected")
}

// ConnectionCount returns the number of attached observers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) register(oc *observerConn) {
	h.mu.Lock()
	h.connections[oc] = true
	h.mu.Unlock()
}

func (h *Hub) unregister(oc *observerConn) {
	h.mu.Lock()
	if _, ok := h.connections[oc]; ok {
		delete(h.connections, oc)
		close(oc.send)
	}
	h.mu.Unlock()
}

func (h *Hub) fanOut(state models.SessionState) {
	data, err := models.EncodeSnapshot(state)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode snapshot for observers")
		return
	}

	h.mu.RLock()
	targets := make([]*observerConn, 0, len(h.connections))
	for oc := range h.connections {
		targets = append(targets, oc)
	}
	h.mu.RUnlock()

	for _, oc := range targets {
		select {
		case oc.send <- data:
		default:
			log.Warn().Str("connection_id", oc.id).Msg("observer send buffer full, closing connection")
			h.unregister(oc)
			oc.conn.Close()
		}
	}
}

func (c *observerConn) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to write snapshot")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *observerConn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.id).Msg("unexpected WebSocket close")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
