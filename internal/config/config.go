// Package config loads service configuration from an optional YAML file with
// environment overrides on top. Engine tables (section markers, junk
// patterns) are not configured here; they load once inside the segment
// package and stay immutable for the process lifetime.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port              int `mapstructure:"port"`
	ReadTimeoutMs     int `mapstructure:"read_timeout_ms"`
	WriteTimeoutMs    int `mapstructure:"write_timeout_ms"`
	ShutdownTimeoutMs int `mapstructure:"shutdown_timeout_ms"`
}

type AuthConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	JWTSecret string   `mapstructure:"jwt_secret"`
	APIKeys   []string `mapstructure:"api_keys"` // bcrypt hashes, not raw keys
}

type RateLimitConfig struct {
	Requests int `mapstructure:"requests"`
	WindowMs int `mapstructure:"window_ms"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres or sqlite3
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Path     string `mapstructure:"path"` // sqlite3 only
}

type CacheConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	TTLMs     int  `mapstructure:"ttl_ms"`
	LocalSize int  `mapstructure:"local_size"`
}

type RenderConfig struct {
	DefaultKind  string `mapstructure:"default_kind"`
	MaxTextBytes int    `mapstructure:"max_text_bytes"`
}

type LiveConfig struct {
	RendersPerSecond float64 `mapstructure:"renders_per_second"`
	Burst            int     `mapstructure:"burst"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the full reportd service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Render    RenderConfig    `mapstructure:"render"`
	Live      LiveConfig      `mapstructure:"live"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Path returns the config file path, checking the env var first.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/reportd.yaml"
}

// Load reads the config file when present, merges it over defaults, then
// applies env overrides. A missing file at the default path is not an error;
// an explicit CONFIG_PATH that cannot be read is.
func Load() (*Config, error) {
	cfg := defaults()

	path := Path()
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if os.Getenv("CONFIG_PATH") != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeoutMs = 15000
	cfg.Server.WriteTimeoutMs = 30000
	cfg.Server.ShutdownTimeoutMs = 10000
	cfg.Auth.Enabled = true
	cfg.RateLimit.Requests = 120
	cfg.RateLimit.WindowMs = 60000
	cfg.Redis.URL = "redis://localhost:6379/0"
	cfg.Database.Driver = "postgres"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "reportd"
	cfg.Database.Name = "reportd"
	cfg.Database.SSLMode = "disable"
	cfg.Database.Path = "reportd.db"
	cfg.Cache.Enabled = true
	cfg.Cache.TTLMs = 900000
	cfg.Cache.LocalSize = 512
	cfg.Render.DefaultKind = "fact_check"
	cfg.Render.MaxTextBytes = 1 << 20
	cfg.Live.RendersPerSecond = 5
	cfg.Live.Burst = 10
	cfg.Tracing.ServiceName = "reportd"
	cfg.Tracing.OTLPEndpoint = "localhost:4317"
	cfg.Logging.Level = "info"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.Port = x
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Database.Port = x
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.RateLimit.Requests = x
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_MS"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.RateLimit.WindowMs = x
		}
	}
	if v := os.Getenv("CACHE_TTL_MS"); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Cache.TTLMs = x
		}
	}
	if v := os.Getenv("TRACING_ENABLED"); v == "1" || v == "true" {
		cfg.Tracing.Enabled = true
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.OTLPEndpoint = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
