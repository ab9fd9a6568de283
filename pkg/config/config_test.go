package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
broker:
  app_id: APP-100
  app_secret: secret
  auth_url: https://api.example.com/auth
  token_url: https://api.example.com/token
  redirect_url: http://localhost:8080/callback
  websocket_url: wss://stream.example.com/data
  rest_url: https://api.example.com/data
collector:
  symbols: [NSE:SBIN-EQ, NSE:TCS-EQ]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "memory", c.Backend.Type)
	assert.Equal(t, "5m", c.Engine.Timeframe)
	assert.Equal(t, 200, c.Engine.Window)
	assert.Equal(t, 50, c.Collector.SymbolsPerConnection)
	assert.Equal(t, 30*time.Second, c.Collector.HealthyAfter)
	assert.Equal(t, "Asia/Kolkata", c.ExchangeLocation().String())
	assert.False(t, c.UsesKafka())
	assert.False(t, c.UsesClickHouse())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "NSE:INFY-EQ, NSE:ITC-EQ,,NSE:HDFCBANK-EQ")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"NSE:INFY-EQ", "NSE:ITC-EQ", "NSE:HDFCBANK-EQ"}, c.Collector.Symbols)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.UsesKafka())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"kafka without brokers", func(c *Config) { c.Backend.Type = "kafka" }},
		{"clickhouse without host", func(c *Config) { c.Backend.Type = "clickhouse" }},
		{"unknown backend", func(c *Config) { c.Backend.Type = "postgres" }},
		{"no secret", func(c *Config) { c.Broker.AppSecret = "" }},
		{"too many symbols", func(c *Config) { c.Collector.MaxConnections = 1; c.Collector.SymbolsPerConnection = 1 }},
		{"bad location", func(c *Config) { c.Engine.Location = "Mars/Olympus" }},
		{"inverted backoff", func(c *Config) { c.Collector.BackoffMin = time.Minute }},
		{"bad timeframe", func(c *Config) { c.Engine.Timeframe = "7m" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Load(writeConfig(t, sample))
			require.NoError(t, err)
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSecretProjectSatisfiesSecret(t *testing.T) {
	c, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	c.Broker.AppSecret = ""
	c.Broker.SecretProject = "stockpulse-prod"
	assert.NoError(t, c.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
