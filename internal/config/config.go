package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Server          ServerConfig              `json:"server"`
	Database        DatabaseConfig            `json:"database"`
	Providers       map[string]ProviderConfig `json:"providers"`
	DefaultProvider string                    `json:"default_provider"`
	Chat            ChatConfig                `json:"chat"`
	Session         SessionConfig             `json:"session"`
	Dispatch        DispatchConfig            `json:"dispatch"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

type ProviderConfig struct {
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	BaseURL        string   `json:"base_url,omitempty"`
	APIKey         string   `json:"api_key,omitempty"`
	DefaultModel   string   `json:"default_model"`
	FallbackModels []string `json:"fallback_models,omitempty"`
}

// ChatConfig controls prompt assembly and model parameters.
type ChatConfig struct {
	SystemPrompt string  `json:"system_prompt"`
	TokenBudget  int     `json:"token_budget"`
	FragmentCap  int     `json:"fragment_cap"`
	Temperature  float32 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// SessionConfig controls context-store lifecycle and locking.
type SessionConfig struct {
	IdleTTL       time.Duration `json:"idle_ttl"`
	SweepInterval time.Duration `json:"sweep_interval"`
	AutoCreate    bool          `json:"auto_create"`
	// BusyPolicy is "block" or "reject" for concurrent turns on one session.
	BusyPolicy string `json:"busy_policy"`
}

// DispatchConfig controls retries and timeouts for provider calls.
type DispatchConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseBackoff time.Duration `json:"base_backoff"`
	CallTimeout time.Duration `json:"call_timeout"`
}

const defaultSystemPrompt = "You are a customer service representative for an " +
	"e-commerce platform. Help customers with orders, products, returns and " +
	"account questions. Be concise, professional and friendly. When structured " +
	"data is provided, answer from it rather than guessing."

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	// Add config paths
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Check for user config directory
	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".shopdesk"))
	}

	// Set defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "shopdesk")
	viper.SetDefault("database.database", "shopdesk")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("default_provider", "groq")
	viper.SetDefault("chat.system_prompt", defaultSystemPrompt)
	viper.SetDefault("chat.token_budget", 8192)
	viper.SetDefault("chat.fragment_cap", 8)
	viper.SetDefault("chat.temperature", 0.0)
	viper.SetDefault("chat.max_tokens", 1024)
	viper.SetDefault("session.idle_ttl", "30m")
	viper.SetDefault("session.sweep_interval", "1m")
	viper.SetDefault("session.auto_create", true)
	viper.SetDefault("session.busy_policy", "block")
	viper.SetDefault("dispatch.max_attempts", 3)
	viper.SetDefault("dispatch.base_backoff", "500ms")
	viper.SetDefault("dispatch.call_timeout", "2m")

	// Read config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file is fine; defaults plus env cover everything.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
	}); err != nil {
		return nil, err
	}

	if cfg.Providers == nil {
		cfg.Providers = defaultProviders()
	}

	// Load environment variables
	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func defaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"groq": {
			Type:         "openai-compatible",
			Name:         "Groq",
			BaseURL:      "https://api.groq.com/openai/v1",
			DefaultModel: "llama3-70b-8192",
			FallbackModels: []string{
				"llama3-8b-8192",
				"mixtral-8x7b-32768",
				"gemma2-9b-it",
			},
		},
		"openai": {
			Type:         "openai",
			Name:         "OpenAI",
			DefaultModel: "gpt-4o-mini",
		},
	}
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("SHOPDESK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("SHOPDESK_HOST"); host != "" {
		cfg.Server.Host = host
	}

	// Provider API keys come from the environment, never the config file.
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		if p, ok := cfg.Providers["groq"]; ok {
			p.APIKey = key
			cfg.Providers["groq"] = p
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if p, ok := cfg.Providers["openai"]; ok {
			p.APIKey = key
			cfg.Providers["openai"] = p
		}
	}

	// Database overrides
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
		cfg.Database.Enabled = true
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}
}
