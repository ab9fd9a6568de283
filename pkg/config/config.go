package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"StockPulse/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
		// repeated errors are aggregated and published here when set
		ErrorTopic    string        `yaml:"error_topic"`
		FlushInterval time.Duration `yaml:"flush_interval" default:"30s"`
	} `yaml:"log"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		CORS            bool          `yaml:"cors" default:"true"`
		RateLimitRPS    float64       `yaml:"rate_limit_rps" default:"20" validate:"gte=0"`
		RateLimitBurst  int           `yaml:"rate_limit_burst" default:"40" validate:"gte=0"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	} `yaml:"server"`

	Metrics struct {
		Path string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Broker struct {
		Name          string        `yaml:"name" default:"fyers"`
		AppID         string        `yaml:"app_id" validate:"required"`
		AppSecret     string        `yaml:"app_secret"`
		AuthURL       string        `yaml:"auth_url" validate:"required,url"`
		TokenURL      string        `yaml:"token_url" validate:"required,url"`
		RedirectURL   string        `yaml:"redirect_url" validate:"required,url"`
		WebSocketURL  string        `yaml:"websocket_url" validate:"required,url"`
		RestURL       string        `yaml:"rest_url" validate:"required,url"`
		Scopes        []string      `yaml:"scopes"`
		SessionTTL    time.Duration `yaml:"session_ttl" default:"24h"`
		RefreshBefore time.Duration `yaml:"refresh_before" default:"1h"`
		CheckInterval time.Duration `yaml:"check_interval" default:"30s"`
		PingInterval  time.Duration `yaml:"ping_interval" default:"15s"`
		HistoryRPS    float64       `yaml:"history_rps" default:"5" validate:"gt=0"`
		// AppSecret is read from GCP Secret Manager when SecretProject is set
		// and AppSecret is empty.
		SecretProject string `yaml:"secret_project"`
		SecretName    string `yaml:"secret_name" default:"broker-app-secret"`
	} `yaml:"broker"`

	Collector struct {
		Symbols              []string      `yaml:"symbols" validate:"min=1,dive,required"`
		SymbolsPerConnection int           `yaml:"symbols_per_connection" default:"50" validate:"gte=1"`
		MaxConnections       int           `yaml:"max_connections" default:"5" validate:"gte=1"`
		BackoffMin           time.Duration `yaml:"backoff_min" default:"1s"`
		BackoffMax           time.Duration `yaml:"backoff_max" default:"30s"`
		HealthyAfter         time.Duration `yaml:"healthy_after" default:"30s"`
		AutoStart            bool          `yaml:"auto_start"`
		Backfill             bool          `yaml:"backfill" default:"true"`
		BackfillBars         int           `yaml:"backfill_bars" default:"200" validate:"gte=0"`
		MaxRPS               float64       `yaml:"max_rps" default:"50" validate:"gte=0"`
		Burst                int           `yaml:"burst" default:"50" validate:"gte=0"`
		BufferSize           int           `yaml:"buffer_size" default:"2000" validate:"gte=1"`
	} `yaml:"collector"`

	Engine struct {
		Timeframe         string        `yaml:"timeframe" default:"5m" validate:"oneof=1m 5m 15m 1h 1d"`
		Window            int           `yaml:"window" default:"200" validate:"gte=20"`
		RecomputeInterval time.Duration `yaml:"recompute_interval" default:"1s"`
		Location          string        `yaml:"location" default:"Asia/Kolkata"`
		PersistCandles    bool          `yaml:"persist_candles"`
	} `yaml:"engine"`

	Backend struct {
		Type         string        `yaml:"type" default:"memory" validate:"oneof=kafka clickhouse memory"`
		BatchSize    int           `yaml:"batch_size" default:"500" validate:"gte=1"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		DedupeWindow int           `yaml:"dedupe_window" default:"4096" validate:"gte=1"`
	} `yaml:"backend"`

	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		TicksTopic   string   `yaml:"ticks_topic" default:"stockpulse.ticks"`
		ScoresTopic  string   `yaml:"scores_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		AutoCreate   bool     `yaml:"auto_create_topics"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"500"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled     bool          `yaml:"enabled"`
			GroupID     string        `yaml:"group_id" default:"stockpulse-ticks-sink"`
			Workers     int           `yaml:"workers" default:"4" validate:"gte=1"`
			BufferSize  int           `yaml:"buffer_size" default:"1000"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic    string        `yaml:"dlq_topic" default:"stockpulse.ticks.dlq"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
			StartOffset string        `yaml:"start_offset" default:"latest" validate:"oneof=earliest latest"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"stockpulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"stockpulse"`
	} `yaml:"redis"`

	Cache struct {
		MarketTTL  time.Duration `yaml:"market_ttl" default:"1s"`
		MemorySize int           `yaml:"memory_size" default:"1000"`
	} `yaml:"cache"`
}

var validate = validator.New()

// Load reads .env (if present) and the YAML file at path, applies defaults
// and environment overrides, then validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BROKER_APP_ID"); v != "" {
		c.Broker.AppID = v
	}
	if v := os.Getenv("BROKER_APP_SECRET"); v != "" {
		c.Broker.AppSecret = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Collector.Symbols = util.SplitList(v)
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = strings.ToLower(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate checks struct tags and the rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Broker.AppSecret == "" && c.Broker.SecretProject == "" {
		return errors.New("broker.app_secret is required (or broker.secret_project)")
	}
	if c.Collector.BackoffMax < c.Collector.BackoffMin {
		return errors.New("collector.backoff_max must be >= collector.backoff_min")
	}
	if len(c.Collector.Symbols) > c.Collector.SymbolsPerConnection*c.Collector.MaxConnections {
		return fmt.Errorf("collector.symbols: %d symbols exceed %d connections of %d",
			len(c.Collector.Symbols), c.Collector.MaxConnections, c.Collector.SymbolsPerConnection)
	}
	if _, err := time.LoadLocation(c.Engine.Location); err != nil {
		return fmt.Errorf("engine.location: %w", err)
	}
	if c.UsesKafka() && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required for the kafka backend, consumer or log shipping")
	}
	if c.UsesClickHouse() && c.ClickHouse.Host == "" {
		return errors.New("clickhouse.host is required for the clickhouse backend, consumer or candle persistence")
	}
	return nil
}

// UsesKafka reports whether any component needs a Kafka producer or consumer.
func (c *Config) UsesKafka() bool {
	return c.Backend.Type == "kafka" || c.Kafka.Consumer.Enabled || c.Kafka.ScoresTopic != "" || c.Log.ErrorTopic != ""
}

// UsesClickHouse reports whether any component needs ClickHouse.
func (c *Config) UsesClickHouse() bool {
	return c.Backend.Type == "clickhouse" || c.Kafka.Consumer.Enabled || c.Engine.PersistCandles
}

// ExchangeLocation is the exchange time zone used for day buckets.
func (c *Config) ExchangeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Engine.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}
