package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg := Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	cfg = Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL: "postgres://db",
			Pool:        PoolConfig{MaxConns: 10, MinConns: 2},
			Outbox:      OutboxConfig{Enabled: true, RelayInterval: time.Second, RelayBatch: 10},
		}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL is required"},
		{name: "pool bounds", mutate: func(c *Config) { c.Pool.MinConns = 20 }, wantErr: "exceeds max conns"},
		{name: "relay batch", mutate: func(c *Config) { c.Outbox.RelayBatch = 0 }, wantErr: "must be positive"},
		{name: "relay ignored when disabled", mutate: func(c *Config) {
			c.Outbox = OutboxConfig{}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
