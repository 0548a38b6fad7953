// Package config loads the deepchat configuration: YAML file layered over
// built-in defaults, with environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all deepchat configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Conversation storage
	Storage StorageConfig `yaml:"storage"`

	// Prompt registry
	Prompts PromptsConfig `yaml:"prompts"`

	// Session engine
	Chat ChatConfig `yaml:"chat"`

	// Remote completion service
	DeepSeek DeepSeekConfig `yaml:"deepseek"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StorageConfig configures the conversation store.
type StorageConfig struct {
	// DataFile is the backing JSON document. Empty means memory-only.
	DataFile string `yaml:"data_file"`

	// FlushEvery flushes the store to disk every Nth write.
	FlushEvery int `yaml:"flush_every"`

	// RetentionAge is how long idle conversations are kept.
	RetentionAge string `yaml:"retention_age"`

	// SweepInterval is the cadence of the background retention sweeper.
	SweepInterval string `yaml:"sweep_interval"`
}

// PromptsConfig configures the prompt registry.
type PromptsConfig struct {
	// CustomFile persists custom prompt templates. Empty means memory-only.
	CustomFile string `yaml:"custom_file"`

	// Watch reloads CustomFile when it is edited externally.
	Watch bool `yaml:"watch"`
}

// ChatConfig configures the session engine.
type ChatConfig struct {
	// WindowSize bounds the non-system context tail per exchange.
	WindowSize int `yaml:"window_size"`
}

// DeepSeekConfig configures the completion client.
type DeepSeekConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: "10s",
		},
		Storage: StorageConfig{
			DataFile:      "data/conversations.json",
			FlushEvery:    5,
			RetentionAge:  "720h", // 30 days
			SweepInterval: "1h",
		},
		Prompts: PromptsConfig{
			CustomFile: "data/custom_prompts.json",
			Watch:      false,
		},
		Chat: ChatConfig{
			WindowSize: 50,
		},
		DeepSeek: DeepSeekConfig{
			BaseURL:     "https://api.deepseek.com",
			Model:       "deepseek-chat",
			Temperature: 0.7,
			MaxTokens:   4000,
			Timeout:     "2m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration from path, applying defaults for anything the
// file leaves unset and environment overrides on top. A missing file is not
// an error; defaults plus environment are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("DEEPCHAT_API_KEY"); key != "" {
		c.DeepSeek.APIKey = key
	}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		c.DeepSeek.APIKey = key
	}
	if url := os.Getenv("DEEPCHAT_BASE_URL"); url != "" {
		c.DeepSeek.BaseURL = url
	}
	if addr := os.Getenv("DEEPCHAT_LISTEN_ADDR"); addr != "" {
		c.Server.ListenAddr = addr
	}
	if path := os.Getenv("DEEPCHAT_DATA_FILE"); path != "" {
		c.Storage.DataFile = path
	}
	if level := os.Getenv("DEEPCHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetCompletionTimeout returns the completion request timeout as a duration.
func (c *Config) GetCompletionTimeout() time.Duration {
	d, err := time.ParseDuration(c.DeepSeek.Timeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// GetRetentionAge returns the conversation retention age as a duration.
func (c *Config) GetRetentionAge() time.Duration {
	d, err := time.ParseDuration(c.Storage.RetentionAge)
	if err != nil {
		return 30 * 24 * time.Hour
	}
	return d
}

// GetSweepInterval returns the retention sweep cadence as a duration.
func (c *Config) GetSweepInterval() time.Duration {
	d, err := time.ParseDuration(c.Storage.SweepInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetShutdownTimeout returns the graceful shutdown deadline as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DeepSeek.APIKey == "" {
		return fmt.Errorf("no API key configured (set DEEPCHAT_API_KEY or deepseek.api_key)")
	}
	if c.Storage.FlushEvery <= 0 {
		return fmt.Errorf("storage.flush_every must be positive, got %d", c.Storage.FlushEvery)
	}
	if c.Chat.WindowSize <= 0 {
		return fmt.Errorf("chat.window_size must be positive, got %d", c.Chat.WindowSize)
	}
	if c.DeepSeek.Temperature < 0 || c.DeepSeek.Temperature > 2 {
		return fmt.Errorf("deepseek.temperature must be in [0, 2], got %g", c.DeepSeek.Temperature)
	}
	return nil
}
