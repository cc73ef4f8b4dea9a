package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	RedisURL          string        `mapstructure:"redis_url" yaml:"redis_url"`
	CallLogPath       string        `mapstructure:"call_log_path" yaml:"call_log_path"`
	ClientOrigin      string        `mapstructure:"client_origin" yaml:"client_origin"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	ReadLimit         int64         `mapstructure:"read_limit" yaml:"read_limit"`
	RingTimeout       time.Duration `mapstructure:"ring_timeout" yaml:"ring_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		RedisURL:          "redis://localhost:6379/0",
		CallLogPath:       "huddle-calls.db",
		ClientOrigin:      "*",
		LogLevel:          "info",
		ReadLimit:         1 << 20, // voice messages ship base64 audio blobs
		RingTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.RedisURL != "" {
		c.RedisURL = other.RedisURL
	}
	if other.CallLogPath != "" {
		c.CallLogPath = other.CallLogPath
	}
	if other.ClientOrigin != "" {
		c.ClientOrigin = other.ClientOrigin
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ReadLimit != 0 {
		c.ReadLimit = other.ReadLimit
	}
	if other.RingTimeout != 0 {
		c.RingTimeout = other.RingTimeout
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}
