package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tmebrain configuration.
// Values come from defaults, an optional YAML file, then the environment.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Retention RetentionConfig `mapstructure:"retention"`
	Brain     BrainConfig     `mapstructure:"brain"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"` // empty resolves to store.DefaultDBPath()
}

type LLMConfig struct {
	Provider       string        `mapstructure:"provider"` // "groq", "openai", "anthropic", "ollama"
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	AnthropicKey   string        `mapstructure:"anthropic_key"`
	OllamaURL      string        `mapstructure:"ollama_url"`
	EmbeddingModel string        `mapstructure:"embedding_model"` // empty selects the built-in hashing embedder
	Timeout        time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	URL        string        `mapstructure:"url"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	TelegramToken  string        `mapstructure:"telegram_token"`
	TelegramChatID string        `mapstructure:"telegram_chat_id"`
	DedupWindow    time.Duration `mapstructure:"dedup_window"`
	QueueSize      int           `mapstructure:"queue_size"`
}

type RetentionConfig struct {
	MaxDataSizeMB int64         `mapstructure:"max_data_size_mb"`
	CleanupDays   int           `mapstructure:"cleanup_days"`
	CheckEvery    int64         `mapstructure:"check_every"` // requests between opportunistic checks
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type BrainConfig struct {
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	QuestionWindow int           `mapstructure:"question_window"`
	IndexK         int           `mapstructure:"index_k"`
	TopicsFile     string        `mapstructure:"topics_file"` // YAML rule table; empty uses the built-in one
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 8765,
		},
		LLM: LLMConfig{
			Provider: "groq",
			Model:    "llama-3.1-8b-instant",
			BaseURL:  "https://api.groq.com/openai/v1",
			Timeout:  60 * time.Second,
		},
		Search: SearchConfig{
			URL:        "https://api.tavily.com/search",
			MaxResults: 2,
			Timeout:    15 * time.Second,
		},
		Notify: NotifyConfig{
			DedupWindow: 60 * time.Second,
			QueueSize:   64,
		},
		Retention: RetentionConfig{
			MaxDataSizeMB: 1024,
			CleanupDays:   30,
			CheckEvery:    100,
			SweepInterval: 24 * time.Hour,
		},
		Brain: BrainConfig{
			CacheTTL:       600 * time.Second,
			QuestionWindow: 10,
			IndexK:         2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// envBindings maps config keys to the environment variables the deployment
// has always used, in addition to the automatic SECTION_KEY names.
var envBindings = map[string]string{
	"database.path":              "TMEBRAIN_DB",
	"llm.api_key":                "GROQ_API_KEY",
	"llm.anthropic_key":          "ANTHROPIC_API_KEY",
	"search.api_key":             "TAVILY_API_KEY",
	"notify.telegram_token":      "TELEGRAM_BOT_TOKEN",
	"notify.telegram_chat_id":    "TELEGRAM_CHAT_ID",
	"retention.max_data_size_mb": "MAX_DATA_SIZE_MB",
	"retention.cleanup_days":     "CLEANUP_DAYS",
}

// Load reads configuration. An explicit path must exist; otherwise
// ~/.tmebrain/config.yaml and ./config.yaml are tried and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tmebrain"))
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.anthropic_key", "")
	v.SetDefault("llm.ollama_url", d.LLM.OllamaURL)
	v.SetDefault("llm.embedding_model", d.LLM.EmbeddingModel)
	v.SetDefault("llm.timeout", d.LLM.Timeout)

	v.SetDefault("search.api_key", "")
	v.SetDefault("search.url", d.Search.URL)
	v.SetDefault("search.max_results", d.Search.MaxResults)
	v.SetDefault("search.timeout", d.Search.Timeout)

	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", "")
	v.SetDefault("notify.dedup_window", d.Notify.DedupWindow)
	v.SetDefault("notify.queue_size", d.Notify.QueueSize)

	v.SetDefault("retention.max_data_size_mb", d.Retention.MaxDataSizeMB)
	v.SetDefault("retention.cleanup_days", d.Retention.CleanupDays)
	v.SetDefault("retention.check_every", d.Retention.CheckEvery)
	v.SetDefault("retention.sweep_interval", d.Retention.SweepInterval)

	v.SetDefault("brain.cache_ttl", d.Brain.CacheTTL)
	v.SetDefault("brain.question_window", d.Brain.QuestionWindow)
	v.SetDefault("brain.index_k", d.Brain.IndexK)
	v.SetDefault("brain.topics_file", d.Brain.TopicsFile)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Retention.MaxDataSizeMB <= 0:
		return fmt.Errorf("retention.max_data_size_mb must be positive, got %d", c.Retention.MaxDataSizeMB)
	case c.Retention.CleanupDays <= 0:
		return fmt.Errorf("retention.cleanup_days must be positive, got %d", c.Retention.CleanupDays)
	case c.Retention.CheckEvery <= 0:
		return fmt.Errorf("retention.check_every must be positive, got %d", c.Retention.CheckEvery)
	case c.Brain.CacheTTL <= 0:
		return fmt.Errorf("brain.cache_ttl must be positive, got %s", c.Brain.CacheTTL)
	}
	return nil
}

// MaxDataBytes returns the storage ceiling in bytes.
func (c *Config) MaxDataBytes() int64 {
	return c.Retention.MaxDataSizeMB * 1024 * 1024
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
