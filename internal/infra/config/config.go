package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Chat    ChatConfig    `yaml:"chat"`
	LLM     ProviderConfig `yaml:"llm"`
	History HistoryConfig `yaml:"history"`
	Pricing PricingConfig `yaml:"pricing"`
	Tools   ToolsConfig   `yaml:"tools"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimitPerMin bounds chat requests per conversation. 0 disables limiting.
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
	RateLimitBurst  int `yaml:"rate_limit_burst"`
}

// ChatConfig holds turn-processing settings.
type ChatConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	// HistoryLimit is the number of recent messages replayed to the model.
	HistoryLimit int `yaml:"history_limit"`
	// EmptyMessageReply is returned for empty user input without a model call.
	EmptyMessageReply string `yaml:"empty_message_reply"`
}

// ProviderConfig holds settings for the LLM provider.
type ProviderConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures the gateway circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// HistoryConfig holds the conversation store settings.
type HistoryConfig struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string `yaml:"path"`
}

// PricingConfig holds fixed per-token prices used for cost reporting.
type PricingConfig struct {
	InputPerMillion  float64 `yaml:"input_per_million"`  // USD per 1M prompt tokens
	OutputPerMillion float64 `yaml:"output_per_million"` // USD per 1M completion tokens
}

// ToolsConfig holds tool settings.
type ToolsConfig struct {
	WeatherAPIKey  string        `yaml:"weather_api_key"`
	WeatherBaseURL string        `yaml:"weather_base_url"`
	WeatherTimeout time.Duration `yaml:"weather_timeout"`
	// DateTimezone is the IANA zone the current-date tool reports in.
	DateTimezone string `yaml:"date_timezone"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults. The model name, history
// depth, and token prices follow the production deployment this service was
// built for.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			RateLimitPerMin: 0,
			RateLimitBurst:  5,
		},
		Chat: ChatConfig{
			SystemPrompt:      "You are a helpful assistant.",
			HistoryLimit:      10,
			EmptyMessageReply: "Please enter a message.",
		},
		LLM: ProviderConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4.1-nano",
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
		},
		History: HistoryConfig{
			Path: filepath.Join(defaultDataDir(), "parley.db"),
		},
		Pricing: PricingConfig{
			InputPerMillion:  0.100,
			OutputPerMillion: 0.400,
		},
		Tools: ToolsConfig{
			WeatherBaseURL: "https://api.openweathermap.org/data/2.5/weather",
			WeatherTimeout: 15 * time.Second,
			DateTimezone:   "Asia/Seoul",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// defaultDataDir returns the persistent data directory under $HOME/.parley.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".parley", "data")
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := decryptSecrets(cfg); err != nil {
				return nil, err
			}
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := decryptSecrets(cfg); err != nil {
		return nil, err
	}

	return cfg, Validate(cfg)
}

// ApplyEnvOverrides maps PARLEY_* env vars to config fields. Env always wins
// over the file so deployments can keep secrets out of it entirely.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PARLEY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PARLEY_OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("PARLEY_OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("PARLEY_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("PARLEY_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("PARLEY_WEATHER_API_KEY"); v != "" {
		cfg.Tools.WeatherAPIKey = v
	}
	if v := os.Getenv("PARLEY_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("PARLEY_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("PARLEY_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("PARLEY_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// Validate checks config invariants that would otherwise fail at runtime.
func Validate(cfg *Config) error {
	if cfg.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat.history_limit must be > 0, got %d", cfg.Chat.HistoryLimit)
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if cfg.Pricing.InputPerMillion < 0 || cfg.Pricing.OutputPerMillion < 0 {
		return fmt.Errorf("pricing rates must not be negative")
	}
	if !strings.HasPrefix(cfg.LLM.BaseURL, "http://") && !strings.HasPrefix(cfg.LLM.BaseURL, "https://") {
		return fmt.Errorf("llm.base_url must be an absolute http(s) URL, got %q", cfg.LLM.BaseURL)
	}
	return nil
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them
// with the passphrase from PARLEY_CONFIG_KEY.
func decryptSecrets(cfg *Config) error {
	secrets := []*string{&cfg.LLM.APIKey, &cfg.Tools.WeatherAPIKey}

	encrypted := false
	for _, fp := range secrets {
		if strings.HasPrefix(*fp, "enc:") {
			encrypted = true
		}
	}
	if !encrypted {
		return nil
	}

	passphrase := os.Getenv("PARLEY_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("config contains encrypted values but PARLEY_CONFIG_KEY is not set")
	}

	for _, fp := range secrets {
		if !strings.HasPrefix(*fp, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("decrypt secret: %w", err)
		}
		*fp = decrypted
	}
	return nil
}
