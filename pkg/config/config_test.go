package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLocal() Config {
	cfg := Default()
	cfg.ObjectStore.EncryptionKey = "enc"
	cfg.ObjectStore.SigningKey = "sign"
	return cfg
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid local", mutate: func(*Config) {}},
		{
			name:    "unknown store driver",
			mutate:  func(c *Config) { c.Store.Driver = "sqlite" },
			wantErr: "store.driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: "store.postgres_dsn",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Lock.Driver = "redis" },
			wantErr: "lock.redis_addr",
		},
		{
			name:    "local objectstore without keys",
			mutate:  func(c *Config) { c.ObjectStore.EncryptionKey = "" },
			wantErr: "objectstore.encryption_key",
		},
		{
			name: "s3 without bucket",
			mutate: func(c *Config) {
				c.ObjectStore.Driver = "s3"
				c.ObjectStore.S3.Endpoint = "s3.example.com"
			},
			wantErr: "objectstore.s3.bucket",
		},
		{
			name:    "bad cron",
			mutate:  func(c *Config) { c.Scheduler.Daily = "0 2 * * *" },
			wantErr: "scheduler.daily",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
			wantErr: "scheduler.timezone",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Delivery.MaxAttempts = 0 },
			wantErr: "delivery.max_attempts",
		},
		{
			name:    "tls cert without key",
			mutate:  func(c *Config) { c.Server.TLS.CertFile = "/etc/cleandoc/tls.crt" },
			wantErr: "server.tls.cert_file",
		},
		{
			name:    "smtp without from",
			mutate:  func(c *Config) { c.SMTP.Host = "smtp.example.com" },
			wantErr: "smtp.from",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validLocal()
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

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := validLocal()
	cfg.Store.Driver = "nope"
	cfg.Lock.Driver = "nope"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "lock.driver")
}

// TestLoadFile tests YAML loading on top of defaults
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cleandoc.yaml")
	content := `
server:
  addr: ":9090"
objectstore:
  encryption_key: k1
  signing_key: k2
  link_ttl: 12h
delivery:
  initial_delay: 2s
scheduler:
  timezone: Europe/Berlin
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 12*time.Hour, cfg.ObjectStore.LinkTTL)
	assert.Equal(t, 2*time.Second, cfg.Delivery.InitialDelay)
	assert.Equal(t, 3, cfg.Delivery.MaxAttempts)
	assert.Equal(t, "0 0 2 * * *", cfg.Scheduler.Daily)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CLEANDOC_STORE_DRIVER": "postgres",
		"CLEANDOC_POSTGRES_DSN": "postgres://localhost/cleandoc",
		"CLEANDOC_SMTP_PORT":    "2525",
		"CLEANDOC_LOG_JSON":     "true",
	}
	cfg := validLocal()
	require.NoError(t, cfg.applyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/cleandoc", cfg.Store.PostgresDSN)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.True(t, cfg.Log.JSON)
}

func TestApplyEnvParseErrors(t *testing.T) {
	env := map[string]string{
		"CLEANDOC_SMTP_PORT": "abc",
		"CLEANDOC_LOG_JSON":  "maybe",
	}
	cfg := validLocal()
	err := cfg.applyEnv(func(k string) string { return env[k] })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLEANDOC_SMTP_PORT")
	assert.Contains(t, err.Error(), "CLEANDOC_LOG_JSON")
}
