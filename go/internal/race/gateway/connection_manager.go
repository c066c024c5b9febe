package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ConnectionManager owns every live websocket connection to the race table
// and implements the table's Broadcaster. Broadcasts funnel through one
// buffered channel drained by a single goroutine, so phase events reach
// clients in the order the scheduler produced them.
type ConnectionManager struct {
	connections map[*Connection]bool
	byUser      map[string]map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	router   *Router

	broadcastCh chan broadcastMessage
}

// Connection represents one websocket client.
type Connection struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	limiter *rate.Limiter

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds websocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	// Inbound message budget per connection; misbehaving clients get
	// their messages dropped, not the whole table slowed down.
	MessagesPerSecond float64
	MessageBurst      int
	CheckOrigin       func(r *http.Request) bool
}

type broadcastMessage struct {
	event  *Event
	userID string // if set, only this user's connections receive it
}

// DefaultConnectionConfig returns the default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    4096,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		MessagesPerSecond: 10,
		MessageBurst:      20,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a connection manager routing client requests
// through the given router.
func NewConnectionManager(config ConnectionConfig, router *Router) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		byUser:      make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		router:      router,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start drains the broadcast channel until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Broadcast queues an event for every connected client.
func (cm *ConnectionManager) Broadcast(eventType string, payload any) {
	cm.queue(broadcastMessage{}, eventType, payload)
}

// SendToUser queues an event for all connections of one user.
func (cm *ConnectionManager) SendToUser(userID string, eventType string, payload any) {
	cm.queue(broadcastMessage{userID: userID}, eventType, payload)
}

func (cm *ConnectionManager) queue(msg broadcastMessage, eventType string, payload any) {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	msg.event = event
	select {
	case cm.broadcastCh <- msg:
	default:
		log.Warn().Str("event_type", eventType).Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket and registers
// the connection.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		limiter:     rate.NewLimiter(rate.Limit(cm.config.MessagesPerSecond), cm.config.MessageBurst),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Msg("websocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = true
	if cm.byUser[conn.UserID] == nil {
		cm.byUser[conn.UserID] = make(map[*Connection]bool)
	}
	cm.byUser[conn.UserID][conn] = true
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.connections[conn]; !exists {
		return
	}
	delete(cm.connections, conn)
	close(conn.Send)
	if userConns, ok := cm.byUser[conn.UserID]; ok {
		delete(userConns, conn)
		if len(userConns) == 0 {
			delete(cm.byUser, conn.UserID)
		}
	}
	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	eventData, err := json.Marshal(message.event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends stay under the read lock: unregisterConnection closes Send
	// under the write lock, so a send here can never hit a closed channel.
	// The sends are non-blocking, so holding the lock is cheap.
	cm.mu.RLock()
	var targets map[*Connection]bool
	if message.userID != "" {
		targets = cm.byUser[message.userID]
	} else {
		targets = cm.connections
	}
	var stale []*Connection
	for conn := range targets {
		select {
		case conn.Send <- eventData:
		default:
			stale = append(stale, conn)
		}
	}
	cm.mu.RUnlock()

	// Slow or dead clients; evict rather than block the table.
	for _, conn := range stale {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// Stats returns connection counts for the stats endpoint.
func (cm *ConnectionManager) Stats() (totalConnections, uniqueUsers int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections), len(cm.byUser)
}

// send delivers a direct response to this connection only. The membership
// check and the send share the read lock for the same reason as broadcasts:
// Send is only ever closed under the write lock.
func (c *Connection) send(eventType string, payload any) {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build response event")
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal response event")
		return
	}

	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()
	if !c.Manager.connections[c] {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("response dropped, send buffer full")
	}
}

// writePump pushes queued messages and pings to the peer.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads client requests and hands them to the router.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			break
		}
		if !c.limiter.Allow() {
			log.Warn().
				Str("connection_id", c.ID).
				Str("user_id", c.UserID).
				Msg("rate limit exceeded, dropping message")
			continue
		}
		c.Manager.router.HandleMessage(c, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
