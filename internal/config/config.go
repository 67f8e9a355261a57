// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type APIConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type OpsConfig struct {
	Port int `yaml:"port"` // /metrics and /health
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"` // per-task run lock TTL
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	TextModel       string `yaml:"text_model"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	ImageModel      string `yaml:"image_model"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent image calls
}

type GenerationConfig struct {
	MaxImageAttempts    int           `yaml:"max_image_attempts"`
	ImageRetryBaseDelay time.Duration `yaml:"image_retry_base_delay"`
	Workers             int           `yaml:"workers"` // pipeline worker pool size
}

type StorageConfig struct {
	Root string `yaml:"root"` // base directory for generated images
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	API        APIConfig        `yaml:"api"`
	Ops        OpsConfig        `yaml:"ops"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	AI         AIConfig         `yaml:"ai"`
	Generation GenerationConfig `yaml:"generation"`
	Storage    StorageConfig    `yaml:"storage"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.RequestTimeout <= 0 {
		cfg.API.RequestTimeout = 15 * time.Second
	}
	if cfg.Ops.Port == 0 {
		cfg.Ops.Port = 9090
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 30 * time.Minute
	}
	if cfg.AI.TextModel == "" {
		cfg.AI.TextModel = "gpt-4o-mini"
	}
	if cfg.AI.ImageModel == "" {
		cfg.AI.ImageModel = "gemini-2.0-flash-preview-image-generation"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 8
	}
	if cfg.Generation.MaxImageAttempts <= 0 {
		cfg.Generation.MaxImageAttempts = 3
	}
	if cfg.Generation.ImageRetryBaseDelay <= 0 {
		cfg.Generation.ImageRetryBaseDelay = 1500 * time.Millisecond
	}
	if cfg.Generation.Workers <= 0 {
		cfg.Generation.Workers = 4
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "./data/images"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if !dev {
		if cfg.AI.OpenAIKey == "" {
			return nil, errors.New("ai.openai_key is required outside dev mode")
		}
		if cfg.AI.GeminiKey == "" {
			return nil, errors.New("ai.gemini_key is required outside dev mode")
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
