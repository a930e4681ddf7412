package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Watson    WatsonConfig    `mapstructure:"watson"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

type TelegramConfig struct {
	Token   string `mapstructure:"token"`
	Workers int    `mapstructure:"workers"`
	Debug   bool   `mapstructure:"debug"`
}

type AssistantConfig struct {
	Provider string `mapstructure:"provider"`
}

type WatsonConfig struct {
	AssistantID string        `mapstructure:"assistant_id"`
	APIKey      string        `mapstructure:"api_key"`
	URL         string        `mapstructure:"url"`
	Version     string        `mapstructure:"version"`
	IAMURL      string        `mapstructure:"iam_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type MetricsConfig struct {
	// Addr of the health/metrics listener; empty disables it.
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// envBindings maps config keys to the environment variables of the deployment.
var envBindings = map[string][]string{
	"telegram.token":      {"TOKEN", "TELEGRAM_TOKEN"},
	"assistant.provider":  {"ASSISTANT_PROVIDER"},
	"watson.assistant_id": {"ASSISTANT_ID"},
	"watson.api_key":      {"APIKEY"},
	"watson.url":          {"URL"},
	"openai.api_key":      {"OPENAI_API_KEY"},
	"storage.backend":     {"STORAGE_BACKEND"},
	"redis.url":           {"REDIS_URL"},
	"metrics.addr":        {"METRICS_ADDR"},
	"log.level":           {"LOG_LEVEL"},
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads defaults, the optional config file at path, and the environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("telegram.workers", 4)
	v.SetDefault("telegram.debug", false)
	v.SetDefault("assistant.provider", "watson")
	v.SetDefault("watson.version", "2019-02-28")
	v.SetDefault("watson.iam_url", "https://iam.cloud.ibm.com/identity/token")
	v.SetDefault("watson.timeout", "30s")
	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.max_tokens", 150)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.session_ttl", "5m")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "wa_bot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("log.level", "debug")

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// The config file is optional; the bot can run from the environment alone
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	return &config, nil
}

// Validate reports every missing or invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram token is required (TOKEN)"))
	}

	switch c.Assistant.Provider {
	case "watson":
		if c.Watson.AssistantID == "" {
			errs = append(errs, errors.New("watson assistant id is required (ASSISTANT_ID)"))
		}
		if c.Watson.APIKey == "" {
			errs = append(errs, errors.New("watson api key is required (APIKEY)"))
		}
		if c.Watson.URL == "" {
			errs = append(errs, errors.New("watson service url is required (URL)"))
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai api key is required (OPENAI_API_KEY)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown assistant provider %q", c.Assistant.Provider))
	}

	switch c.Storage.Backend {
	case "memory", "postgres":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis url is required for the redis backend (REDIS_URL)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level: %w", err))
	}

	return errors.Join(errs...)
}
