package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Provider ProviderConfig `yaml:"provider"`
	Game     GameConfig     `yaml:"game"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type StorageConfig struct {
	// Driver selects the persistence backend: "bolt" (default) or "mysql".
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	MySQL  MySQLConfig `yaml:"mysql"`
	Redis  RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type ProviderConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
}

type GameConfig struct {
	// SessionTimeoutSeconds is the idle threshold after which an active
	// adventure is paused instead of accepting the next action.
	SessionTimeoutSeconds int `yaml:"session_timeout"`
	// AutoSaveIntervalSeconds drives the background flush of active sessions.
	AutoSaveIntervalSeconds int `yaml:"auto_save_interval"`
	// MaxCacheDays expires persisted adventures not touched for this long.
	MaxCacheDays         int    `yaml:"max_cache_days"`
	DefaultTheme         string `yaml:"default_adventure_theme"`
	SystemPromptTemplate string `yaml:"system_prompt_template"`
	EraseOnShutdown      bool   `yaml:"delete_cache_on_uninstall"`
	// MaxCachedOwners bounds how many idle owners keep their index resident
	// in memory; evicted owners reload from the store on next access.
	MaxCachedOwners int `yaml:"max_cached_owners"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (g GameConfig) SessionTimeout() time.Duration {
	return time.Duration(g.SessionTimeoutSeconds) * time.Second
}

func (g GameConfig) AutoSaveInterval() time.Duration {
	return time.Duration(g.AutoSaveIntervalSeconds) * time.Second
}

func (g GameConfig) CacheRetention() time.Duration {
	return time.Duration(g.MaxCacheDays) * 24 * time.Hour
}

// Default returns a configuration with every field at its built-in value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file and applies environment
// variable overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		c.Provider.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		c.Provider.BaseURL = baseURL
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Storage.Redis.Password = password
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 180 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "bolt"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/adventures.db"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "gpt-4o-mini"
	}
	if c.Provider.MaxTokens == 0 {
		c.Provider.MaxTokens = 1000
	}
	if c.Provider.Temperature == 0 {
		c.Provider.Temperature = 0.7
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Game.SessionTimeoutSeconds == 0 {
		c.Game.SessionTimeoutSeconds = 300
	}
	if c.Game.AutoSaveIntervalSeconds == 0 {
		c.Game.AutoSaveIntervalSeconds = 60
	}
	if c.Game.MaxCacheDays == 0 {
		c.Game.MaxCacheDays = 7
	}
	if c.Game.DefaultTheme == "" {
		c.Game.DefaultTheme = "奇幻世界"
	}
	if c.Game.MaxCachedOwners == 0 {
		c.Game.MaxCachedOwners = 1024
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
