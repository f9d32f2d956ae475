package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Lock        LockConfig        `yaml:"lock"`
	ObjectStore ObjectStoreConfig `yaml:"objectstore"`
	PDF         PDFConfig         `yaml:"pdf"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Export      ExportConfig      `yaml:"export"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Addr      string    `yaml:"addr"`
	PublicURL string    `yaml:"public_url"`
	TLS       TLSConfig `yaml:"tls"`
}

// TLSConfig enables HTTPS on the API. Without a cert and key file a
// self-signed certificate is kept under the data directory.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type StoreConfig struct {
	// Driver is "bolt" or "postgres"
	Driver      string `yaml:"driver"`
	DataDir     string `yaml:"data_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type LockConfig struct {
	// Driver is "local" or "redis"
	Driver    string        `yaml:"driver"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

type ObjectStoreConfig struct {
	// Driver is "local" or "s3"
	Driver   string `yaml:"driver"`
	LocalDir string `yaml:"local_dir"`
	// EncryptionKey derives the AES-256 key used by the local backend
	EncryptionKey string `yaml:"encryption_key"`
	// SigningKey signs local download tokens
	SigningKey string        `yaml:"signing_key"`
	LinkTTL    time.Duration `yaml:"link_ttl"`
	S3         S3Config      `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type PDFConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ChromiumPath string        `yaml:"chromium_path"`
	Timeout      time.Duration `yaml:"timeout"`
	Timezone     string        `yaml:"timezone"`
}

type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DeliveryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	SFTPTimeout    time.Duration `yaml:"sftp_timeout"`
}

type SchedulerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Daily       string        `yaml:"daily"`
	Weekly      string        `yaml:"weekly"`
	Timezone    string        `yaml:"timezone"`
	TenantDelay time.Duration `yaml:"tenant_delay"`
}

type ExportConfig struct {
	KeyPrefix            string `yaml:"key_prefix"`
	DefaultRetentionDays int    `yaml:"default_retention_days"`
}

// Default returns a configuration usable for local operation
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info"},
		Server: ServerConfig{Addr: ":8080", PublicURL: "http://localhost:8080"},
		Store:  StoreConfig{Driver: "bolt", DataDir: "./data"},
		Lock:   LockConfig{Driver: "local", TTL: 30 * time.Minute},
		ObjectStore: ObjectStoreConfig{
			Driver:   "local",
			LocalDir: "./data/objects",
			LinkTTL:  24 * time.Hour,
		},
		PDF:  PDFConfig{Enabled: true, Timeout: 30 * time.Second, Timezone: "UTC"},
		SMTP: SMTPConfig{Port: 587, Timeout: 30 * time.Second},
		Delivery: DeliveryConfig{
			MaxAttempts:    3,
			InitialDelay:   5 * time.Second,
			WebhookTimeout: 30 * time.Second,
			SFTPTimeout:    30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			Daily:       "0 0 2 * * *",
			Weekly:      "0 0 3 * * 0",
			Timezone:    "UTC",
			TenantDelay: time.Second,
		},
		Export: ExportConfig{KeyPrefix: "exports", DefaultRetentionDays: 730},
	}
}

// Load reads the YAML file at path on top of Default, then applies
// CLEANDOC_* environment overrides and validates the result.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	secret := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
			return
		}
		*dst = b
	}

	str("CLEANDOC_LOG_LEVEL", &c.Log.Level)
	flag("CLEANDOC_LOG_JSON", &c.Log.JSON)
	str("CLEANDOC_ADDR", &c.Server.Addr)
	str("CLEANDOC_PUBLIC_URL", &c.Server.PublicURL)
	flag("CLEANDOC_TLS_ENABLED", &c.Server.TLS.Enabled)
	str("CLEANDOC_TLS_CERT_FILE", &c.Server.TLS.CertFile)
	str("CLEANDOC_TLS_KEY_FILE", &c.Server.TLS.KeyFile)
	str("CLEANDOC_STORE_DRIVER", &c.Store.Driver)
	str("CLEANDOC_DATA_DIR", &c.Store.DataDir)
	secret("CLEANDOC_POSTGRES_DSN", &c.Store.PostgresDSN)
	str("CLEANDOC_LOCK_DRIVER", &c.Lock.Driver)
	str("CLEANDOC_REDIS_ADDR", &c.Lock.RedisAddr)
	str("CLEANDOC_OBJECTSTORE_DRIVER", &c.ObjectStore.Driver)
	str("CLEANDOC_OBJECTSTORE_DIR", &c.ObjectStore.LocalDir)
	secret("CLEANDOC_ENCRYPTION_KEY", &c.ObjectStore.EncryptionKey)
	secret("CLEANDOC_SIGNING_KEY", &c.ObjectStore.SigningKey)
	str("CLEANDOC_S3_ENDPOINT", &c.ObjectStore.S3.Endpoint)
	str("CLEANDOC_S3_BUCKET", &c.ObjectStore.S3.Bucket)
	str("CLEANDOC_S3_REGION", &c.ObjectStore.S3.Region)
	secret("CLEANDOC_S3_ACCESS_KEY", &c.ObjectStore.S3.AccessKey)
	secret("CLEANDOC_S3_SECRET_KEY", &c.ObjectStore.S3.SecretKey)
	flag("CLEANDOC_PDF_ENABLED", &c.PDF.Enabled)
	str("CLEANDOC_CHROMIUM_PATH", &c.PDF.ChromiumPath)
	str("CLEANDOC_SMTP_HOST", &c.SMTP.Host)
	num("CLEANDOC_SMTP_PORT", &c.SMTP.Port)
	str("CLEANDOC_SMTP_USERNAME", &c.SMTP.Username)
	secret("CLEANDOC_SMTP_PASSWORD", &c.SMTP.Password)
	str("CLEANDOC_SMTP_FROM", &c.SMTP.From)
	flag("CLEANDOC_SCHEDULER_ENABLED", &c.Scheduler.Enabled)
	str("CLEANDOC_SCHEDULER_TIMEZONE", &c.Scheduler.Timezone)

	return errors.Join(errs...)
}

// Validate reports every configuration problem at once
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "bolt":
		if c.Store.DataDir == "" {
			errs = append(errs, errors.New("store.data_dir is required for the bolt driver"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be bolt or postgres, got %q", c.Store.Driver))
	}

	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Lock.RedisAddr == "" {
			errs = append(errs, errors.New("lock.redis_addr is required for the redis driver"))
		}
		if c.Lock.TTL <= 0 {
			errs = append(errs, errors.New("lock.ttl must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.driver must be local or redis, got %q", c.Lock.Driver))
	}

	switch c.ObjectStore.Driver {
	case "local":
		if c.ObjectStore.LocalDir == "" {
			errs = append(errs, errors.New("objectstore.local_dir is required for the local driver"))
		}
		if c.ObjectStore.EncryptionKey == "" {
			errs = append(errs, errors.New("objectstore.encryption_key is required for the local driver"))
		}
		if c.ObjectStore.SigningKey == "" {
			errs = append(errs, errors.New("objectstore.signing_key is required for the local driver"))
		}
	case "s3":
		s3 := c.ObjectStore.S3
		if s3.Endpoint == "" || s3.Bucket == "" {
			errs = append(errs, errors.New("objectstore.s3.endpoint and objectstore.s3.bucket are required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("objectstore.driver must be local or s3, got %q", c.ObjectStore.Driver))
	}

	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls.cert_file and server.tls.key_file must be set together"))
	}

	if c.Delivery.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("delivery.max_attempts must be at least 1, got %d", c.Delivery.MaxAttempts))
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		errs = append(errs, errors.New("smtp.from is required when smtp.host is set"))
	}
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("smtp.port must be a valid port, got %d", c.SMTP.Port))
	}

	if c.Scheduler.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Scheduler.Daily); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.daily: %w", err))
		}
		if _, err := parser.Parse(c.Scheduler.Weekly); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.weekly: %w", err))
		}
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
	}

	if c.Export.DefaultRetentionDays < 1 {
		errs = append(errs, fmt.Errorf("export.default_retention_days must be positive, got %d", c.Export.DefaultRetentionDays))
	}

	return errors.Join(errs...)
}

// Location returns the scheduler time zone
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
