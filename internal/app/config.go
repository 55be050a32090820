package app

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the server and worker.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":3000"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	APIPrefix string `envconfig:"API_PREFIX" default:"/api"`
	StaticDir string `envconfig:"STATIC_DIR"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	StorePath        string `envconfig:"STORE_PATH" default:"data_profile/users.json"`
	StoreDescription string `envconfig:"STORE_DESCRIPTION" default:"COLCON user data"`
	StoreVersion     string `envconfig:"STORE_VERSION" default:"1.0"`

	// EmailCaseInsensitive folds case and trims spaces in the duplicate email
	// check. Off keeps the exact comparison.
	EmailCaseInsensitive bool `envconfig:"EMAIL_CASE_INSENSITIVE" default:"false"`

	// RedisAddr enables event publishing and the job queue; empty disables both.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	EventsChannel string `envconfig:"EVENTS_CHANNEL" default:"colcon:registrations"`

	SnapshotDir    string `envconfig:"SNAPSHOT_DIR" default:"data_profile/snapshots"`
	SnapshotRetain int    `envconfig:"SNAPSHOT_RETAIN" default:"14"`
	SnapshotCron   string `envconfig:"SNAPSHOT_CRON" default:"0 3 * * *"`

	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.StorePath) == "" {
		return nil, errors.New("store path must be provided")
	}
	cfg.APIPrefix = normalizePrefix(cfg.APIPrefix)
	if cfg.SnapshotRetain < 0 {
		return nil, errors.New("snapshot retain must not be negative")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c != nil && strings.TrimSpace(c.RedisAddr) != ""
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return "/api"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}
