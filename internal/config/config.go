// Package config 載入與驗證服務設定
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koopa0/localcache/internal/cache"
)

// Config 服務設定
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Cache struct {
		// Capacity 條目數上限
		Capacity int `yaml:"capacity"`
		// DefaultTTL 預設存活時間，0 代表不設預設（條目永不過期）
		DefaultTTL time.Duration `yaml:"default_ttl"`
		// CleanupInterval 背景清掃週期，0 代表不啟動背景清掃
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
		// SnapshotPath 快照檔路徑，設定後啟動時載入、關機時保存
		SnapshotPath string `yaml:"snapshot_path"`
	} `yaml:"cache"`

	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Output    string `yaml:"output"`
		AddSource bool   `yaml:"add_source"`
	} `yaml:"log"`
}

// Load 讀取設定檔，套用預設值並驗證
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 1024
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
}

// Validate 拒絕無法開機的設定
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("cache default_ttl must not be negative, got %s", c.Cache.DefaultTTL)
	}
	if c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cache cleanup_interval must not be negative, got %s", c.Cache.CleanupInterval)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}
	return nil
}

// Addr 服務監聽位址，環境變數 PORT 優先於設定檔
func (c *Config) Addr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return fmt.Sprintf(":%d", c.Server.Port)
}

// EffectiveDefaultTTL 換算快取層的預設 TTL。
// 設定層以 0 表示「不設預設」，對應快取層的 NoTTL 哨兵值。
func (c *Config) EffectiveDefaultTTL() time.Duration {
	if c.Cache.DefaultTTL == 0 {
		return cache.NoTTL
	}
	return c.Cache.DefaultTTL
}
