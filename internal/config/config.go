package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Remote  RemoteConfig
	Sync    SyncConfig
	Network NetworkConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type StoreConfig struct {
	DataDir string
}

type RemoteConfig struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

type SyncConfig struct {
	Interval    time.Duration
	Timeout     time.Duration
	EntityTypes []string
}

type NetworkConfig struct {
	ProbeURL      string
	ProbeInterval time.Duration
}

type LoggingConfig struct {
	Level string
}

// Load reads configuration from the environment, with a .env file as
// fallback. Missing values fall back to defaults; only malformed
// durations are errors.
func Load() (*Config, error) {
	godotenv.Load()

	remoteTimeout, err := getEnvAsDuration("REMOTE_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	syncInterval, err := getEnvAsDuration("SYNC_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	syncTimeout, err := getEnvAsDuration("SYNC_TIMEOUT", "5m")
	if err != nil {
		return nil, err
	}
	probeInterval, err := getEnvAsDuration("PROBE_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("HOST", "127.0.0.1"),
			Port: getEnv("PORT", "8090"),
		},
		Store: StoreConfig{
			DataDir: getEnv("DATA_DIR", defaultDataDir()),
		},
		Remote: RemoteConfig{
			BaseURL:   getEnv("REMOTE_BASE_URL", "http://localhost:8080"),
			AuthToken: getEnv("REMOTE_AUTH_TOKEN", ""),
			Timeout:   remoteTimeout,
		},
		Sync: SyncConfig{
			Interval:    syncInterval,
			Timeout:     syncTimeout,
			EntityTypes: getEnvAsList("SYNC_ENTITY_TYPES", nil),
		},
		Network: NetworkConfig{
			ProbeURL:      getEnv("PROBE_URL", ""),
			ProbeInterval: probeInterval,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	// Probing the sync server itself is the sensible default.
	if cfg.Network.ProbeURL == "" {
		cfg.Network.ProbeURL = cfg.Remote.BaseURL
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldsync"
	}
	return home + "/.fieldsync"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
