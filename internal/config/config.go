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

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AppleConfig struct {
	BundleID     string `yaml:"bundle_id"`
	Issuer       string `yaml:"issuer"`
	KeyID        string `yaml:"key_id"`
	Key          string `yaml:"key"`      // EC P-256 private key, PEM
	KeyFile      string `yaml:"key_file"` // read into Key when Key is empty
	SharedSecret string `yaml:"shared_secret"`
}

type GoogleConfig struct {
	ServiceAccountEmail string `yaml:"service_account_email"`
	Key                 string `yaml:"key"`      // RSA private key, PEM
	KeyFile             string `yaml:"key_file"` // read into Key when Key is empty
}

type IAPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type CronConfig struct {
	Secret   string        `yaml:"secret"`
	Interval time.Duration `yaml:"interval"` // 0 disables the background worker
}

type WebhookConfig struct {
	// SandboxForwardURL receives sandbox notifications that arrive on the
	// production deployment, forwarded verbatim.
	SandboxForwardURL string `yaml:"sandbox_forward_url"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type Config struct {
	Server     ServerConfig   `yaml:"server"`
	Log        LogConfig      `yaml:"log"`
	Database   DatabaseConfig `yaml:"database"`
	Redis      RedisConfig    `yaml:"redis"`
	Apple      AppleConfig    `yaml:"apple"`
	Google     GoogleConfig   `yaml:"google"`
	IAP        IAPConfig      `yaml:"iap"`
	Cron       CronConfig     `yaml:"cron"`
	Webhook    WebhookConfig  `yaml:"webhook"`
	Auth       AuthConfig     `yaml:"auth"`
	Production bool           `yaml:"production"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(b, dev)
}

func parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.IAP.Timeout <= 0 {
		cfg.IAP.Timeout = 60 * time.Second
	}

	if err := loadKeyFile(&cfg.Apple.Key, cfg.Apple.KeyFile); err != nil {
		return nil, fmt.Errorf("apple.key_file: %w", err)
	}
	if err := loadKeyFile(&cfg.Google.Key, cfg.Google.KeyFile); err != nil {
		return nil, fmt.Errorf("google.key_file: %w", err)
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Apple.BundleID == "" {
		return nil, errors.New("apple.bundle_id is required")
	}
	if cfg.Cron.Secret == "" {
		return nil, errors.New("cron.secret is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func loadKeyFile(key *string, path string) error {
	if *key != "" || path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	*key = string(b)
	return nil
}
