// Package config loads the listener's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// History backends.
const (
	HistoryNone   = "none"
	HistoryMemory = "memory"
	HistoryRedis  = "redis"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains the endpoint and session limits
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Secret           string        `yaml:"secret"`
	SecretEnv        string        `yaml:"secret_env"` // environment variable holding the secret
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"` // 0 waits forever
	MaxMessageSize   int           `yaml:"max_message_size"`
}

// HistoryConfig selects where session records are kept
type HistoryConfig struct {
	Backend     string        `yaml:"backend"`
	TTL         time.Duration `yaml:"ttl"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisDB     int           `yaml:"redis_db"`
	RedisPrefix string        `yaml:"redis_prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"` // daily log files are written here when set
}

// Default returns the configuration used when no file is given. It has no
// secret, so it only validates once one is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:             "localhost",
			Port:             8080,
			HandshakeTimeout: 10 * time.Second,
			MaxMessageSize:   32 << 20,
		},
		History: HistoryConfig{
			Backend:     HistoryNone,
			TTL:         24 * time.Hour,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "sentinel:session",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration file at path on top of Default, resolves
// secret_env and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.finish(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return cfg, nil
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read decodes the file at path on top of Default without resolving or
// validating it, so callers can apply overrides first.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return cfg, nil
}

// Decode is Read without the file read.
func Decode(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) finish() error {
	c.ResolveSecret()

	if err := c.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// ResolveSecret fills Server.Secret from Server.SecretEnv when no literal
// secret is set.
func (c *Config) ResolveSecret() {
	if c.Server.Secret == "" && c.Server.SecretEnv != "" {
		c.Server.Secret = os.Getenv(c.Server.SecretEnv)
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}

	if s.Secret == "" {
		if s.SecretEnv != "" {
			return fmt.Errorf("secret_env %s is unset or empty", s.SecretEnv)
		}
		return fmt.Errorf("secret cannot be empty")
	}

	if s.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake_timeout cannot be negative, got %s", s.HandshakeTimeout)
	}

	if s.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %s", s.IdleTimeout)
	}

	if s.MaxMessageSize < 1 {
		return fmt.Errorf("max_message_size must be at least 1 byte, got %d", s.MaxMessageSize)
	}

	return nil
}

// Validate validates history configuration
func (h *HistoryConfig) Validate() error {
	switch h.Backend {
	case HistoryNone, HistoryMemory:
	case HistoryRedis:
		if h.RedisAddr == "" {
			return fmt.Errorf("redis_addr cannot be empty when backend is redis")
		}
		if h.RedisDB < 0 {
			return fmt.Errorf("redis_db cannot be negative, got %d", h.RedisDB)
		}
	default:
		return fmt.Errorf("backend must be one of none, memory, redis, got %q", h.Backend)
	}

	if h.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative, got %s", h.TTL)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("level must be a zerolog level name, got %q", l.Level)
	}

	switch strings.ToLower(l.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("format must be json or console, got %q", l.Format)
	}

	return nil
}
