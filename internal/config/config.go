// Package config loads server settings from the environment.
package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/triage-ai/icio-mcp/internal/apperr"
)

var (
	defaultAllowedHosts   = []string{"localhost:*", "127.0.0.1:*", "[::1]:*"}
	defaultAllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*", "http://[::1]:*"}
)

// Config is the immutable server configuration, built once at startup.
type Config struct {
	PostgresDSN         string
	HTTPAddr            string
	HealthGRPCHost      string
	HealthGRPCPort      string // empty disables the gRPC health listener
	LogLevel            string
	DBMaxOpenConns      int
	DBMaxIdleConns      int
	DBConnMaxLifetime   time.Duration
	AllowedHosts        []string
	AllowedOrigins      []string
	ClickHouseDSN       string // empty selects the log event writer
	HealthProbeInterval time.Duration
}

// Load reads the configuration. It fails with a configuration error when
// PG_DSN is unset or a numeric setting does not parse.
func Load() (*Config, error) {
	cfg := &Config{
		PostgresDSN:    strings.TrimSpace(os.Getenv("PG_DSN")),
		HTTPAddr:       EnvOrDefault("ICIO_HTTP_ADDR", "127.0.0.1:8000"),
		HealthGRPCHost: EnvOrDefault("ICIO_HEALTH_GRPC_HOST", "127.0.0.1"),
		LogLevel:       EnvOrDefault("ICIO_LOG_LEVEL", "info"),
		AllowedHosts:   envList("ICIO_ALLOWED_HOSTS", defaultAllowedHosts),
		AllowedOrigins: envList("ICIO_ALLOWED_ORIGINS", defaultAllowedOrigins),
		ClickHouseDSN:  os.Getenv("CLICKHOUSE_DSN"),
	}
	if cfg.PostgresDSN == "" {
		return nil, apperr.Configuration("PG_DSN is not set")
	}

	if v, ok := os.LookupEnv("ICIO_HEALTH_GRPC_PORT"); ok {
		cfg.HealthGRPCPort = strings.TrimSpace(v)
	} else {
		cfg.HealthGRPCPort = "50055"
	}
	if cfg.HealthGRPCPort != "" {
		if _, err := positiveInt("ICIO_HEALTH_GRPC_PORT", cfg.HealthGRPCPort); err != nil {
			return nil, err
		}
	}

	var err error
	if cfg.DBMaxOpenConns, err = envPositiveInt("ICIO_DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.DBMaxIdleConns, err = envPositiveInt("ICIO_DB_MAX_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	lifetime, err := envPositiveInt("ICIO_DB_CONN_MAX_LIFETIME_S", 300)
	if err != nil {
		return nil, err
	}
	cfg.DBConnMaxLifetime = time.Duration(lifetime) * time.Second

	interval, err := envPositiveInt("ICIO_HEALTH_PROBE_INTERVAL_S", 15)
	if err != nil {
		return nil, err
	}
	cfg.HealthProbeInterval = time.Duration(interval) * time.Second

	return cfg, nil
}

// HealthGRPCAddr is the listen address of the gRPC health server, or "" when
// it is disabled.
func (c *Config) HealthGRPCAddr() string {
	if c.HealthGRPCPort == "" {
		return ""
	}
	return net.JoinHostPort(c.HealthGRPCHost, c.HealthGRPCPort)
}

// EnvOrDefault returns the value of key, or defaultVal when unset or empty.
func EnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envPositiveInt(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	return positiveInt(key, v)
}

func positiveInt(key, v string) (int, error) {
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Configuration("%s must be an integer, got %q", key, v)
	}
	if i < 1 {
		return 0, apperr.Configuration("%s must be >= 1, got %d", key, i)
	}
	return i, nil
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
