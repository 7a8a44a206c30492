package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (PHARMA_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PHARMA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Pool        PoolConfig
	Outbox      OutboxConfig
	Graceful    GracefulConfig
}

// PoolConfig sizes the PostgreSQL connection pool.
type PoolConfig struct {
	MaxConns        int32         `default:"10" usage:"Maximum open connections"`
	MinConns        int32         `default:"2" usage:"Connections kept open when idle"`
	MaxConnLifetime time.Duration `default:"1h" usage:"Recycle connections older than this"`
	MaxConnIdleTime time.Duration `default:"30m" usage:"Close connections idle longer than this"`
}

// OutboxConfig controls how transition events leave the service. When the
// outbox is disabled events are only logged.
type OutboxConfig struct {
	Enabled       bool          `default:"true" usage:"Record transition events in order_events" flag:"outbox"`
	RelayInterval time.Duration `default:"2s" usage:"How often pending events are relayed" flag:"relay-interval"`
	RelayBatch    int           `default:"100" usage:"Events relayed per round" flag:"relay-batch"`
	MaxBacklog    int           `default:"10000" usage:"Pending events above which the instance reports not ready" flag:"max-backlog"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML files,
// then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PHARMA",
		Files:     []string{"config.yaml", "/etc/pharma/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set PHARMA_DATABASE_URL or DATABASE_URL")
	}
	if c.Pool.MinConns > c.Pool.MaxConns {
		return errors.Errorf("pool min conns %d exceeds max conns %d", c.Pool.MinConns, c.Pool.MaxConns)
	}
	if c.Outbox.Enabled && (c.Outbox.RelayBatch < 1 || c.Outbox.RelayInterval <= 0) {
		return errors.New("outbox relay batch and interval must be positive")
	}
	return nil
}

// applyPlatformDefaults maps DATABASE_URL and PORT, as set by hosting
// platforms, onto the PHARMA_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
