// Package config loads server configuration from a YAML file with
// environment-variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Expiry    ExpiryConfig    `yaml:"expiry"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// BroadcastConfig selects and configures the snapshot propagation backend.
// Backend is one of "memory", "nats", "redis".
type BroadcastConfig struct {
	Backend            string      `yaml:"backend"`
	RefreshIntervalSec int         `yaml:"refresh_interval_sec"`
	NATS               NATSConfig  `yaml:"nats"`
	Redis              RedisConfig `yaml:"redis"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	Channel  string `yaml:"channel"`
}

type ExpiryConfig struct {
	TickSec int `yaml:"tick_sec"`
}

// ArchiveConfig enables snapshot persistence when DSN is non-empty.
type ArchiveConfig struct {
	DSN             string `yaml:"dsn"`
	SaveIntervalSec int    `yaml:"save_interval_sec"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
		Broadcast: BroadcastConfig{
			Backend:            "memory",
			RefreshIntervalSec: 2,
			NATS: NATSConfig{
				URL:     "nats://localhost:4222",
				Subject: "livepoll.session.state",
			},
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Key:     "livepoll:session:state",
				Channel: "livepoll:session:updates",
			},
		},
		Expiry:  ExpiryConfig{TickSec: 1},
		Archive: ArchiveConfig{SaveIntervalSec: 30},
	}
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.Server.Addr = getEnv("LIVEPOLL_ADDR", cfg.Server.Addr)
	cfg.Log.Level = getEnv("LIVEPOLL_LOG_LEVEL", cfg.Log.Level)
	cfg.Broadcast.Backend = getEnv("LIVEPOLL_BROADCAST", cfg.Broadcast.Backend)
	cfg.Broadcast.NATS.URL = getEnv("NATS_URL", cfg.Broadcast.NATS.URL)
	cfg.Broadcast.Redis.Addr = getEnv("REDIS_ADDR", cfg.Broadcast.Redis.Addr)
	cfg.Broadcast.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Broadcast.Redis.Password)
	cfg.Broadcast.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Broadcast.Redis.DB)
	cfg.Archive.DSN = getEnv("DATABASE_URL", cfg.Archive.DSN)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
