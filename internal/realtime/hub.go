package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Subscriber streams raw messages published to a channel until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

type connectionObserver interface {
	AddRealtimeConnections(delta int)
}

// Config configures a Hub.
type Config struct {
	// Channel maps a student id onto the pub/sub channel carrying their events.
	Channel        func(studentID string) string
	AllowedOrigins []string
}

type noopObserver struct{}

func (noopObserver) AddRealtimeConnections(int) {}

type client struct {
	studentID string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub keeps websocket connections per student and relays their pub/sub channel.
// A student's channel is subscribed on their first connection and released with the last.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]map[*client]struct{}
	cancelFuncs map[string]context.CancelFunc

	subscriber Subscriber
	metrics    connectionObserver
	logger     *zap.Logger
	channel    func(string) string
	upgrader   websocket.Upgrader
}

// NewHub constructs a Hub.
func NewHub(subscriber Subscriber, metrics connectionObserver, logger *zap.Logger, cfg Config) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopObserver{}
	}
	channel := cfg.Channel
	if channel == nil {
		channel = func(id string) string { return "session_updates:" + id }
	}
	return &Hub{
		clients:     make(map[string]map[*client]struct{}),
		cancelFuncs: make(map[string]context.CancelFunc),
		subscriber:  subscriber,
		metrics:     metrics,
		logger:      logger,
		channel:     channel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Serve upgrades the request and attaches the connection to the student's feed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, studentID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	c := &client{studentID: studentID, conn: conn, send: make(chan []byte, sendBuffer)}
	if err := h.register(c); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"), time.Now().Add(writeWait))
		_ = conn.Close()
		return err
	}

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// Connections returns the number of open connections for a student.
func (h *Hub) Connections(studentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[studentID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for studentID, set := range h.clients {
		for c := range set {
			c.close()
		}
		h.metrics.AddRealtimeConnections(-len(set))
		if cancel, ok := h.cancelFuncs[studentID]; ok {
			cancel()
		}
	}
	h.clients = make(map[string]map[*client]struct{})
	h.cancelFuncs = make(map[string]context.CancelFunc)
}

func (h *Hub) register(c *client) error {
	if h.attach(c) {
		return nil
	}

	// Subscribing waits on Redis, so it runs without the lock held.
	ctx, cancel := context.WithCancel(context.Background())
	messages, err := h.subscriber.Subscribe(ctx, h.channel(c.studentID))
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe student %s: %w", c.studentID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.studentID]
	if ok {
		// another connection for this student subscribed first
		cancel()
	} else {
		set = make(map[*client]struct{})
		h.clients[c.studentID] = set
		h.cancelFuncs[c.studentID] = cancel
		go h.forward(c.studentID, messages)
	}
	h.add(set, c)
	return nil
}

// attach joins an existing subscription for the client's student, if any.
func (h *Hub) attach(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.studentID]
	if !ok {
		return false
	}
	h.add(set, c)
	return true
}

func (h *Hub) add(set map[*client]struct{}, c *client) {
	set[c] = struct{}{}
	h.metrics.AddRealtimeConnections(1)
	h.logger.Debug("websocket connected", zap.String("student_id", c.studentID), zap.Int("connections", len(set)))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.studentID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	c.close()
	h.metrics.AddRealtimeConnections(-1)

	if len(set) == 0 {
		delete(h.clients, c.studentID)
		if cancel, ok := h.cancelFuncs[c.studentID]; ok {
			cancel()
			delete(h.cancelFuncs, c.studentID)
		}
	}
	h.logger.Debug("websocket disconnected", zap.String("student_id", c.studentID))
}

func (h *Hub) forward(studentID string, messages <-chan []byte) {
	for msg := range messages {
		h.broadcast(studentID, msg)
	}
}

func (h *Hub) broadcast(studentID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[studentID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping message for slow websocket client", zap.String("student_id", studentID))
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("student_id", c.studentID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
