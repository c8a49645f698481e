package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is one event pushed to connected clients.
type Message struct {
	Kind       string    `json:"kind"`
	LineID     string    `json:"line_id"`
	DocumentID string    `json:"document_id,omitempty"`
	StepID     string    `json:"step_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID           string
	UserID       string
	Conn         *websocket.Conn
	Send         chan Message
	LastActivity time.Time
}

// Hub manages WebSocket connections and broadcasts workflow events to them
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan Message
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	mu          sync.RWMutex
}

// NewHub creates a hub and starts its broadcast loop
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan Message, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// In production, implement proper origin checking
				return true
			},
		},
	}
	go h.run()
	return h
}

// HandleConnection upgrades an HTTP request and registers the client
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = uuid.New().String()
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		UserID:       userID,
		Conn:         conn,
		Send:         make(chan Message, 64),
		LastActivity: time.Now(),
	}

	h.register <- connection

	go h.readPump(connection)
	go h.writePump(connection)

	return connection, nil
}

// Broadcast queues a message for every connected client. Non-blocking: when
// the buffer is full the message is dropped, never the workflow.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast buffer full, dropping message",
			zap.String("kind", msg.Kind))
	}
}

// Stop shuts down the broadcast loop and closes all connections
func (h *Hub) Stop() {
	close(h.stop)
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", zap.String("user_id", conn.UserID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if h.connections[conn] {
				delete(h.connections, conn)
				close(conn.Send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.connections {
				select {
				case conn.Send <- msg:
				default:
					// Slow client; skip rather than stall the hub.
				}
			}
			h.mu.RUnlock()

		case <-h.stop:
			h.mu.Lock()
			for conn := range h.connections {
				close(conn.Send)
				conn.Conn.Close()
			}
			h.connections = make(map[*Connection]bool)
			h.mu.Unlock()
			return
		}
	}
}

// readPump drains client messages and detects disconnects
func (h *Hub) readPump(conn *Connection) {
	defer func() {
		h.unregister <- conn
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.LastActivity = time.Now()
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump delivers queued messages and keepalive pings to one client
func (h *Hub) writePump(conn *Connection) {
	ticker := time.NewTicker(45 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
