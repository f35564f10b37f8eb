package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Presence PresenceConfig `yaml:"presence"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig represents the HTTP/WebSocket server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	StaticDir    string        `yaml:"static_dir"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	SendBuffer   int           `yaml:"send_buffer"`
}

// PresenceConfig controls how long offline records are retained
type PresenceConfig struct {
	GracePeriod   time.Duration `yaml:"grace_period"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if it exists
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a configuration with default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			StaticDir:    "./public",
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
			SendBuffer:   256,
		},
		Presence: PresenceConfig{
			GracePeriod:   time.Hour,
			SweepInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// getConfigPath returns the configuration file path
func getConfigPath() string {
	// Check environment variable first
	if path := os.Getenv("BEACON_CONFIG"); path != "" {
		return path
	}

	// Look for config.yaml in current directory
	return "config.yaml"
}

// applyEnv overrides configuration with environment variables
func (c *Config) applyEnv() {
	// Server configuration
	if host := os.Getenv("BEACON_SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("BEACON_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	// Bare PORT is honored for parity with common PaaS setups
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dir := os.Getenv("BEACON_SERVER_STATIC_DIR"); dir != "" {
		c.Server.StaticDir = dir
	}
	if readTimeout := os.Getenv("BEACON_SERVER_READ_TIMEOUT"); readTimeout != "" {
		if d, err := time.ParseDuration(readTimeout); err == nil {
			c.Server.ReadTimeout = d
		}
	}
	if writeTimeout := os.Getenv("BEACON_SERVER_WRITE_TIMEOUT"); writeTimeout != "" {
		if d, err := time.ParseDuration(writeTimeout); err == nil {
			c.Server.WriteTimeout = d
		}
	}
	if pingInterval := os.Getenv("BEACON_SERVER_PING_INTERVAL"); pingInterval != "" {
		if d, err := time.ParseDuration(pingInterval); err == nil {
			c.Server.PingInterval = d
		}
	}
	if buf := os.Getenv("BEACON_SERVER_SEND_BUFFER"); buf != "" {
		if n, err := strconv.Atoi(buf); err == nil {
			c.Server.SendBuffer = n
		}
	}

	// Presence configuration
	if grace := os.Getenv("BEACON_PRESENCE_GRACE_PERIOD"); grace != "" {
		if d, err := time.ParseDuration(grace); err == nil {
			c.Presence.GracePeriod = d
		}
	}
	if sweep := os.Getenv("BEACON_PRESENCE_SWEEP_INTERVAL"); sweep != "" {
		if d, err := time.ParseDuration(sweep); err == nil {
			c.Presence.SweepInterval = d
		}
	}

	// Logging configuration
	if level := os.Getenv("BEACON_LOGGING_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("BEACON_LOGGING_FORMAT"); format != "" {
		c.Logging.Format = format
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}

	if c.Server.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}

	if c.Server.PingInterval >= c.Server.ReadTimeout {
		return fmt.Errorf("ping interval must be shorter than read timeout")
	}

	if c.Server.SendBuffer < 1 {
		return fmt.Errorf("send buffer must be at least 1")
	}

	if c.Presence.GracePeriod <= 0 {
		return fmt.Errorf("grace period must be positive")
	}

	if c.Presence.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	return nil
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s:%d, Grace: %s, Logging: %s/%s}",
		c.Server.Host, c.Server.Port,
		c.Presence.GracePeriod,
		c.Logging.Level, c.Logging.Format,
	)
}

// Addr returns the listen address in host:port form
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
