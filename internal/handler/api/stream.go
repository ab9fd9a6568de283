package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"StockPulse/pkg/events"
	applogger "StockPulse/pkg/logger"
)

var streamTopics = []string{
	events.TopicScoreUpdated,
	events.TopicCollectionStatus,
	events.TopicSessionChanged,
}

type StreamOption func(*StreamHub)

// WithStreamSnapshot sends the events returned by fn to every new client
// before live updates.
func WithStreamSnapshot(fn func() []events.Event) StreamOption {
	return func(h *StreamHub) { h.snapshot = fn }
}

func WithStreamTimings(ping, writeWait time.Duration) StreamOption {
	return func(h *StreamHub) {
		if ping > 0 {
			h.pingEvery = ping
		}
		if writeWait > 0 {
			h.writeWait = writeWait
		}
	}
}

// StreamHub pushes bus events to WebSocket clients. It is the only bus
// subscriber for its topics and fans out itself.
type StreamHub struct {
	bus       *events.Bus
	l         *applogger.Logger
	upgrader  websocket.Upgrader
	sendBuf   int
	pingEvery time.Duration
	writeWait time.Duration
	snapshot  func() []events.Event
	onEvent   func(events.Event)

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	started bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.done) })
}

func NewStreamHub(bus *events.Bus, l *applogger.Logger, opts ...StreamOption) *StreamHub {
	h := &StreamHub{
		bus:       bus,
		l:         l,
		sendBuf:   256,
		pingEvery: 30 * time.Second,
		writeWait: 10 * time.Second,
		clients:   make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.onEvent = h.broadcast
	return h
}

// Start subscribes the hub to the bus.
func (h *StreamHub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}
	for _, topic := range streamTopics {
		if err := h.bus.Subscribe(topic, h.onEvent); err != nil {
			return err
		}
	}
	h.started = true
	return nil
}

// Close unsubscribes and disconnects every client.
func (h *StreamHub) Close() {
	h.mu.Lock()
	if h.started {
		for _, topic := range streamTopics {
			_ = h.bus.Unsubscribe(topic, h.onEvent)
		}
		h.started = false
	}
	clients := h.clients
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// Clients is the number of connected clients.
func (h *StreamHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and streams events until the client leaves.
func (h *StreamHub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("stream upgrade failed", applogger.Error(err))
		return nil
	}
	cl := &streamClient{conn: conn, send: make(chan []byte, h.sendBuf), done: make(chan struct{})}

	if h.snapshot != nil {
		for _, ev := range h.snapshot() {
			if b, err := json.Marshal(ev); err == nil {
				cl.send <- b
			}
		}
	}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.l.Debug("stream client connected", applogger.String("remote", c.RealIP()), applogger.Int("clients", n))

	go h.readLoop(cl)
	h.writeLoop(cl)

	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	return nil
}

func (h *StreamHub) broadcast(ev events.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.l.Warn("stream encode failed", applogger.String("type", ev.Type), applogger.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			// slow consumer
			h.l.Warn("stream client too slow, dropping")
			c.close()
		}
	}
}

// readLoop discards client frames and notices disconnects.
func (h *StreamHub) readLoop(c *streamClient) {
	defer c.close()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingEvery))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) writeLoop(c *streamClient) {
	ticker := time.NewTicker(h.pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeWait))
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
