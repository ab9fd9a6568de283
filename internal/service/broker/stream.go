package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
)

var (
	ErrNotConnected = errors.New("broker stream not connected")
	ErrServer       = errors.New("broker stream error")
)

type StreamConfig struct {
	URL              string
	PingInterval     time.Duration
	PongWait         time.Duration
	HandshakeTimeout time.Duration
	Buffer           int
}

// Client is one broker WebSocket connection.
type Client struct {
	cfg    StreamConfig
	dialer *websocket.Dialer

	wmu       sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

// NewStream creates a MarketStream for one pooled connection.
func NewStream(cfg StreamConfig) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 3 * cfg.PingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
	}
}

// StreamFactory returns a factory opening a fresh Client per connection.
func StreamFactory(cfg StreamConfig) drepo.StreamFactory {
	return func() drepo.MarketStream { return NewStream(cfg) }
}

// Connect dials the broker with the session's bearer token.
func (c *Client) Connect(ctx context.Context, accessToken string) error {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, h)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("broker dial: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("broker dial: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	c.wmu.Lock()
	c.conn = conn
	c.wmu.Unlock()
	c.connected.Store(true)
	return nil
}

type subscribeMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// Subscribe asks the broker for ticks of symbols.
func (c *Client) Subscribe(_ context.Context, symbols []string) error {
	if err := c.write(subscribeMsg{Type: "subscribe", Symbols: symbols}); err != nil {
		return fmt.Errorf("subscribe %d symbols: %w", len(symbols), err)
	}
	return nil
}

func (c *Client) write(v interface{}) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *Client) ping() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.HandshakeTimeout))
}

type wireTick struct {
	S   string   `json:"s"`
	P   float64  `json:"p"`
	V   float64  `json:"v"`
	OI  *float64 `json:"oi"`
	T   int64    `json:"t"` // ms
	Seq int64    `json:"seq"`
}

type wireMessage struct {
	Type    string     `json:"type"`
	Data    []wireTick `json:"d"`
	Message string     `json:"message"`
}

// Read streams ticks until the connection fails or ctx ends. The error
// channel receives at most one error and both channels are then closed.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, c.cfg.Buffer)
	errs := make(chan error, 1)

	c.wmu.Lock()
	conn := c.conn
	c.wmu.Unlock()
	if conn == nil {
		errs <- ErrNotConnected
		close(errs)
		close(ticks)
		return ticks, errs
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// unblock ReadMessage
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = c.ping()
			}
		}
	}()

	go func() {
		defer close(ticks)
		defer close(errs)
		defer close(done)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("broker read: %w", err)
				}
				return
			}
			var m wireMessage
			if err := json.Unmarshal(b, &m); err != nil {
				continue
			}
			switch m.Type {
			case "ticks":
			case "error":
				c.connected.Store(false)
				errs <- fmt.Errorf("%w: %s", ErrServer, m.Message)
				return
			default:
				continue
			}
			for _, d := range m.Data {
				t := normalize(d)
				if t == nil {
					continue
				}
				select {
				case ticks <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ticks, errs
}

// normalize maps a wire tick onto the domain; malformed symbols and missing
// timestamps are dropped.
func normalize(d wireTick) *models.Tick {
	if d.T <= 0 {
		return nil
	}
	sym, err := models.ParseSymbol(d.S)
	if err != nil {
		return nil
	}
	return &models.Tick{
		Symbol:       sym.String(),
		Timestamp:    time.UnixMilli(d.T),
		Price:        d.P,
		Volume:       d.V,
		OpenInterest: d.OI,
		Seq:          d.Seq,
	}
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected.Load() }

var _ drepo.MarketStream = (*Client)(nil)
