package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, int64(1024*1024), cfg.Server.MaxBodySize)
	assert.Equal(t, []string{"*"}, cfg.Server.CORS.AllowedOrigins)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Database.IsEmbedded())
	assert.Equal(t, "./data/keygate.db", cfg.Database.Path)

	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Auth.AdminEnabled())

	assert.Equal(t, "GOU", cfg.Activation.DefaultPrefix)
	assert.False(t, cfg.Activation.StrictAccountBinding)
	assert.Equal(t, bcrypt.DefaultCost, cfg.Activation.BcryptCost)
	assert.Equal(t, 30*time.Second, cfg.Activation.LockTTL)

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.RateLimit.BurstSize)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("KEYGATE_SERVER_PORT", "9000")
	t.Setenv("KEYGATE_AUTH_ADMIN_TOKEN", "secret")
	t.Setenv("KEYGATE_ACTIVATION_DEFAULT_PREFIX", "VIP")
	t.Setenv("KEYGATE_ACTIVATION_STRICT_ACCOUNT_BINDING", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Auth.AdminEnabled())
	assert.Equal(t, "VIP", cfg.Activation.DefaultPrefix)
	assert.True(t, cfg.Activation.StrictAccountBinding)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keygate.yaml")
	content := `
database:
  driver: postgres
  host: db.internal
activation:
  bcrypt_cost: 12
  lock_ttl: 1m
rate_limit:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Contains(t, cfg.Database.DSN(), "dbname=keygate")
	assert.Equal(t, 12, cfg.Activation.BcryptCost)
	assert.Equal(t, time.Minute, cfg.Activation.LockTTL)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keygate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "database.driver"},
		{name: "sqlite path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "postgres host", mutate: func(c *Config) {
			c.Database.Driver = "postgres"
			c.Database.Host = ""
		}, wantErr: "database.host"},
		{name: "prefix", mutate: func(c *Config) { c.Activation.DefaultPrefix = "" }, wantErr: "default_prefix"},
		{name: "bcrypt low", mutate: func(c *Config) { c.Activation.BcryptCost = 1 }, wantErr: "bcrypt_cost"},
		{name: "bcrypt high", mutate: func(c *Config) { c.Activation.BcryptCost = 40 }, wantErr: "bcrypt_cost"},
		{name: "lock ttl", mutate: func(c *Config) { c.Activation.LockTTL = 0 }, wantErr: "lock_ttl"},
		{name: "rate", mutate: func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }, wantErr: "requests_per_second"},
		{name: "rate disabled", mutate: func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.RequestsPerSecond = 0
		}},
		{name: "burst", mutate: func(c *Config) { c.RateLimit.BurstSize = 0 }, wantErr: "burst_size"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
