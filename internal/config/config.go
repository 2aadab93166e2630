package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type Config struct {
	Engine  EngineConfig  `json:"engine"`
	Sources []Source      `json:"sources"`
	API     APIConfig     `json:"api"`
	Storage StorageConfig `json:"storage"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`

	filePath string
}

type EngineConfig struct {
	ThreadCount           int    `json:"thread_count"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
	RequestDelaySeconds   int    `json:"request_delay_seconds"`
	JudgeURL              string `json:"judge_url"`
	RealIPURL             string `json:"real_ip_url"`
	UserAgent             string `json:"user_agent"`
	SocksEnabled          bool   `json:"socks_enabled"`
	Delimiter             string `json:"delimiter"`
}

type Source struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

type APIConfig struct {
	Addr               string `json:"addr"`
	APIKeyEnv          string `json:"api_key_env"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	EnableAPIKeyAuth   bool   `json:"enable_api_key_auth"`
	EnableIPRateLimit  bool   `json:"enable_ip_rate_limit"`
}

type StorageConfig struct {
	Type                   string `json:"type"` // "file", "sqlite", "redis"
	Path                   string `json:"path"`
	PersistIntervalSeconds int    `json:"persist_interval_seconds"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint"`
	Namespace string `json:"namespace"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

var (
	globalConfig *Config
	configMu     sync.RWMutex
)

// Load reads configuration from JSON file
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.filePath = filePath
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	configMu.Lock()
	globalConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.ThreadCount == 0 {
		c.Engine.ThreadCount = 8
	}
	if c.Engine.RequestTimeoutSeconds == 0 {
		c.Engine.RequestTimeoutSeconds = 10
	}
	if c.Engine.JudgeURL == "" {
		c.Engine.JudgeURL = "http://azenv.net/"
	}
	if c.Engine.RealIPURL == "" {
		c.Engine.RealIPURL = "https://api.ipify.org"
	}
	if c.Engine.Delimiter == "" {
		c.Engine.Delimiter = ":"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8083"
	}
	if c.API.RateLimitPerMinute == 0 {
		c.API.RateLimitPerMinute = 1200
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/proxies.json"
	}
	if c.Storage.PersistIntervalSeconds == 0 {
		c.Storage.PersistIntervalSeconds = 300
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "proxyscope"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Reload reloads configuration from file
func (c *Config) Reload() error {
	newCfg, err := Load(c.filePath)
	if err != nil {
		return err
	}

	*c = *newCfg
	return nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Engine.ThreadCount < 1 || c.Engine.ThreadCount > 1024 {
		return fmt.Errorf("thread_count must be between 1 and 1024")
	}
	if c.Engine.RequestTimeoutSeconds < 1 || c.Engine.RequestTimeoutSeconds > 300 {
		return fmt.Errorf("request_timeout_seconds must be between 1 and 300")
	}
	if c.Engine.RequestDelaySeconds < 0 {
		return fmt.Errorf("request_delay_seconds must not be negative")
	}
	if c.Storage.Type != "file" && c.Storage.Type != "sqlite" && c.Storage.Type != "redis" {
		return fmt.Errorf("storage type must be 'file', 'sqlite', or 'redis'")
	}
	return nil
}

// EnabledSources returns the URLs of all enabled scrape sources.
func (c *Config) EnabledSources() []string {
	urls := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			urls = append(urls, s.URL)
		}
	}
	return urls
}

// GetGlobal returns global config instance
func GetGlobal() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
