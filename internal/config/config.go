package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

// Config — настройки процесса, читаются один раз при старте.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	HistoryTTL    time.Duration

	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModel           string
	Temperature           float32
	MaxTokens             int
	MaxHistory            int
	ExtractionTemperature float32
	ExtractionMaxTokens   int
	LLMTimeout            time.Duration
	CompletionMarker      string
	SystemPrompt          string
	ExtractionPrompt      string
	AssistantName         string

	TelegramBotToken    string
	TelegramBaseURL     string
	TelegramPollTimeout time.Duration
	OperatorIDs         []int64

	AvitoAccessToken  string
	AvitoUserID       int64
	AvitoBaseURL      string
	AvitoPollInterval time.Duration
	AvitoErrorBackoff time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	def := intake.DefaultConfig()
	return &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		DatabaseURL:   getEnv("DATABASE_URL", "intake.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		HistoryTTL:    getEnvAsDuration("HISTORY_TTL", 72*time.Hour),

		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", def.Model),
		Temperature:           getEnvAsFloat32("OPENAI_TEMPERATURE", def.Temperature),
		MaxTokens:             getEnvAsInt("OPENAI_MAX_TOKENS", def.MaxTokens),
		MaxHistory:            getEnvAsInt("MAX_HISTORY", def.MaxHistory),
		ExtractionTemperature: getEnvAsFloat32("EXTRACTION_TEMPERATURE", def.ExtractionTemperature),
		ExtractionMaxTokens:   getEnvAsInt("EXTRACTION_MAX_TOKENS", def.ExtractionMaxTokens),
		LLMTimeout:            getEnvAsDuration("LLM_TIMEOUT", def.LLMTimeout),
		CompletionMarker:      getEnv("COMPLETION_MARKER", def.CompletionMarker),
		SystemPrompt:          getEnv("SYSTEM_PROMPT", def.SystemPrompt),
		ExtractionPrompt:      getEnv("EXTRACTION_PROMPT", def.ExtractionPrompt),
		AssistantName:         getEnv("ASSISTANT_NAME", def.AssistantName),

		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramBaseURL:     getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
		TelegramPollTimeout: getEnvAsDuration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
		OperatorIDs:         getEnvAsInt64List("TELEGRAM_OPERATOR_IDS"),

		AvitoAccessToken:  getEnv("AVITO_ACCESS_TOKEN", ""),
		AvitoUserID:       getEnvAsInt64("AVITO_USER_ID", 0),
		AvitoBaseURL:      getEnv("AVITO_BASE_URL", "https://api.avito.ru"),
		AvitoPollInterval: getEnvAsDuration("AVITO_POLL_INTERVAL", 10*time.Second),
		AvitoErrorBackoff: getEnvAsDuration("AVITO_ERROR_BACKOFF", 60*time.Second),
	}
}

func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("config: OPENAI_API_KEY is not set")
	}
	if c.AvitoAccessToken != "" && c.AvitoUserID == 0 {
		return errors.New("config: AVITO_USER_ID is required with AVITO_ACCESS_TOKEN")
	}
	if c.AvitoPollInterval <= 0 {
		return errors.Errorf("config: AVITO_POLL_INTERVAL must be positive, got %s", c.AvitoPollInterval)
	}
	return c.Engine().Validate()
}

func (c *Config) TelegramEnabled() bool { return c.TelegramBotToken != "" }

func (c *Config) AvitoEnabled() bool { return c.AvitoAccessToken != "" }

func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// Engine produces the dialogue engine settings; StoreLabel is filled in by main.
func (c *Config) Engine() intake.Config {
	cfg := intake.DefaultConfig()
	cfg.Model = c.OpenAIModel
	cfg.Temperature = c.Temperature
	cfg.MaxTokens = c.MaxTokens
	cfg.MaxHistory = c.MaxHistory
	cfg.ExtractionTemperature = c.ExtractionTemperature
	cfg.ExtractionMaxTokens = c.ExtractionMaxTokens
	cfg.LLMTimeout = c.LLMTimeout
	cfg.CompletionMarker = c.CompletionMarker
	cfg.SystemPrompt = c.SystemPrompt
	cfg.ExtractionPrompt = c.ExtractionPrompt
	cfg.AssistantName = c.AssistantName
	return cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsInt64List parses "1, 2,3"; malformed items are skipped.
func getEnvAsInt64List(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if v, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}
