package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Processor ProcessorConfig
	Store     StoreConfig
}

type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type ProcessorConfig struct {
	Delay         time.Duration
	MaxUploadSize int64
	// BackendAddr selects a remote gRPC inference backend; empty means simulate.
	BackendAddr string
}

type StoreConfig struct {
	RedisAddr   string
	DatabaseDSN string
	ResultTTL   time.Duration
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetDefault("SERVER_ADDR", ":8000")
	v.SetDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"})
	v.SetDefault("SHUTDOWN_TIMEOUT", 15*time.Second)
	v.SetDefault("PROCESSING_DELAY", 2*time.Second)
	v.SetDefault("MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB
	v.SetDefault("AI_BACKEND_ADDR", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("RESULT_TTL", time.Hour)

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            v.GetString("SERVER_ADDR"),
			AllowedOrigins:  splitList(v.GetStringSlice("CORS_ALLOWED_ORIGINS")),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Processor: ProcessorConfig{
			Delay:         v.GetDuration("PROCESSING_DELAY"),
			MaxUploadSize: v.GetInt64("MAX_UPLOAD_SIZE"),
			BackendAddr:   strings.TrimSpace(v.GetString("AI_BACKEND_ADDR")),
		},
		Store: StoreConfig{
			RedisAddr:   strings.TrimSpace(v.GetString("REDIS_ADDR")),
			DatabaseDSN: strings.TrimSpace(v.GetString("DATABASE_DSN")),
			ResultTTL:   v.GetDuration("RESULT_TTL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("SERVER_ADDR must not be empty")
	}
	if c.Processor.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.Processor.MaxUploadSize)
	}
	if c.Processor.Delay < 0 {
		return fmt.Errorf("PROCESSING_DELAY must not be negative, got %s", c.Processor.Delay)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.Server.ShutdownTimeout)
	}
	return nil
}

// splitList accepts both "a,b" and "a b" forms coming from the environment.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
