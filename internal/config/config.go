// Package config loads relay configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backend names accepted by Config.StoreBackend.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

// Config holds all relay settings. Every field maps to a COWAVE_*
// environment variable with a usable default, so a bare `cowave serve`
// runs an in-memory relay on :4040.
type Config struct {
	Addr string `env:"COWAVE_ADDR" envDefault:":4040"`

	ReadLimit    int64         `env:"COWAVE_READ_LIMIT" envDefault:"1048576"`
	SendBuffer   int           `env:"COWAVE_SEND_BUFFER" envDefault:"64"`
	WriteTimeout time.Duration `env:"COWAVE_WRITE_TIMEOUT" envDefault:"10s"`
	PingInterval time.Duration `env:"COWAVE_PING_INTERVAL" envDefault:"30s"`
	PongWait     time.Duration `env:"COWAVE_PONG_WAIT" envDefault:"60s"`

	// StoreBackend selects room persistence: memory, bolt, redis or s3.
	StoreBackend string `env:"COWAVE_STORE" envDefault:"memory"`

	BoltPath string `env:"COWAVE_BOLT_PATH" envDefault:"cowave.db"`

	RedisAddr     string `env:"COWAVE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"COWAVE_REDIS_PASSWORD"`
	RedisDB       int    `env:"COWAVE_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"COWAVE_REDIS_PREFIX" envDefault:"cowave:"`

	S3Bucket string `env:"COWAVE_S3_BUCKET"`
	S3Prefix string `env:"COWAVE_S3_PREFIX" envDefault:"rooms/"`

	LogLevel string `env:"COWAVE_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would only fail later at runtime.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	case BackendBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("bolt backend requires COWAVE_BOLT_PATH")
		}
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("s3 backend requires COWAVE_S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	return nil
}
