package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Progress transport modes.
const (
	ProgressModeWebSocket = "ws"
	ProgressModeRedis     = "redis"
)

// Asset URL modes.
const (
	AssetModeStatic = "static"
	AssetModeMinIO  = "minio"
)

type Config struct {
	Server   ServerConfig
	Watch    WatchConfig
	Backend  BackendConfig
	Progress ProgressConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Assets   AssetsConfig
	MinIO    MinIOConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"GATEWAY_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"GATEWAY_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"GATEWAY_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"GATEWAY_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxUploadBytes  int64         `envconfig:"GATEWAY_MAX_UPLOAD_BYTES" default:"2147483648"`
}

type WatchConfig struct {
	RefreshInterval time.Duration `envconfig:"WATCH_REFRESH_INTERVAL" default:"0s"`
	ShutdownTimeout time.Duration `envconfig:"WATCH_SHUTDOWN_TIMEOUT" default:"5s"`
}

type BackendConfig struct {
	BaseURL string        `envconfig:"BACKEND_URL" default:"http://localhost:8000/api"`
	Timeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"5m"`
}

type ProgressConfig struct {
	Mode             string        `envconfig:"PROGRESS_MODE" default:"ws"`
	WebSocketURL     string        `envconfig:"PROGRESS_WS_URL" default:"ws://localhost:8000/api/ws"`
	HandshakeTimeout time.Duration `envconfig:"PROGRESS_HANDSHAKE_TIMEOUT" default:"10s"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig controls the shared Redis cache of the backend video list.
type CacheConfig struct {
	Enabled bool          `envconfig:"VIDEO_LIST_CACHE_ENABLED" default:"false"`
	ListTTL time.Duration `envconfig:"VIDEO_LIST_CACHE_TTL" default:"30s"`
}

type AssetsConfig struct {
	Mode          string        `envconfig:"ASSETS_MODE" default:"static"`
	StaticBaseURL string        `envconfig:"ASSETS_STATIC_URL" default:"http://localhost:8000/static"`
	PresignExpiry time.Duration `envconfig:"ASSETS_PRESIGN_EXPIRY" default:"15m"`
	CheckExists   bool          `envconfig:"ASSETS_CHECK_EXISTS" default:"false"`
}

type MinIOConfig struct {
	Endpoint       string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	PublicEndpoint string `envconfig:"MINIO_PUBLIC_ENDPOINT" default:""`
	AccessKey      string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"MINIO_BUCKET" default:"framelens"`
	UseSSL         bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

func (c *Config) validate() error {
	var errs []error
	switch c.Progress.Mode {
	case ProgressModeWebSocket, ProgressModeRedis:
	default:
		errs = append(errs, fmt.Errorf("PROGRESS_MODE must be %q or %q, got %q", ProgressModeWebSocket, ProgressModeRedis, c.Progress.Mode))
	}
	switch c.Assets.Mode {
	case AssetModeStatic, AssetModeMinIO:
	default:
		errs = append(errs, fmt.Errorf("ASSETS_MODE must be %q or %q, got %q", AssetModeStatic, AssetModeMinIO, c.Assets.Mode))
	}
	if c.Cache.Enabled && c.Cache.ListTTL <= 0 {
		errs = append(errs, fmt.Errorf("VIDEO_LIST_CACHE_TTL must be positive, got %s", c.Cache.ListTTL))
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}
	return errors.Join(errs...)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
