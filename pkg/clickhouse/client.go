package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Config holds the connection settings for the tick and candle store.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	UseHTTP bool
	// AsyncInsert lets the server buffer small inserts. With WaitForAsync an
	// insert returns only after the buffer is flushed.
	AsyncInsert  bool
	WaitForAsync bool

	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	MaxExecutionTime time.Duration
	MaxOpenConns     int
	MaxIdleConns     int
}

// Options maps cfg onto driver options, filling pool and timeout defaults.
func Options(cfg Config) *clickhouse.Options {
	if cfg.Port == 0 {
		cfg.Port = 9000
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}

	opts := &clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Protocol:        clickhouse.Native,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: 5 * time.Minute,
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "stockpulse", Version: "1"}},
		},
		Settings: clickhouse.Settings{},
	}
	if cfg.UseHTTP {
		opts.Protocol = clickhouse.HTTP
	}
	if cfg.MaxExecutionTime > 0 {
		opts.Settings["max_execution_time"] = int(cfg.MaxExecutionTime.Seconds())
	}
	if cfg.AsyncInsert {
		opts.Settings["async_insert"] = 1
		if cfg.WaitForAsync {
			opts.Settings["wait_for_async_insert"] = 1
		}
	}
	return opts
}

// Client owns the ClickHouse pool shared by the tick storage and the candle
// store.
type Client struct {
	db *sql.DB
}

// NewClient opens the pool and pings the server within ctx.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("clickhouse: host is required")
	}
	db := clickhouse.OpenDB(Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		var exc *clickhouse.Exception
		if errors.As(err, &exc) {
			return nil, fmt.Errorf("clickhouse ping: [%d] %s", exc.Code, exc.Message)
		}
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{db: db}, nil
}

func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
