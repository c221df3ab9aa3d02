package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var ErrMissing = errors.New("missing required configuration")

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	StrategyWindow = "window"
	StrategyBudget = "budget"
)

type Config struct {
	TelegramToken         string
	TelegramAPI           string
	TelegramMode          string
	TelegramPoll          int
	TelegramWebhookURL    string
	TelegramWebhookAddr   string
	TelegramWebhookSecret string
	AllowedUserIDs        []int64

	LLMProvider   string // openai | anthropic
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeoutSec int
	LLMMaxTokens  int

	GitHubChatID         int64
	WebhookHost          string
	WebhookPort          int
	GitHubWebhookSecret  string
	RailwayWebhookSecret string

	MemoryStrategy string
	MemoryCapacity int
	MemoryMaxBytes int

	PromptMobile       bool
	PromptSubjective   bool
	PromptOverrideFile string

	DispatchWorkers       int
	RelayDBPath           string
	RelayDigestCron       string
	HeartbeatStaleSeconds int
	HeartbeatNotify       bool
	LogLevel              string

	problems []string
}

// Load reads an optional .env file, then the process environment, and validates the result.
func Load(logger *slog.Logger, files ...string) (Config, error) {
	cfg := LoadEnv(logger, files...)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnv is Load without validation, for commands that need only part of the settings.
func LoadEnv(logger *slog.Logger, files ...string) Config {
	if err := godotenv.Load(files...); err != nil && logger != nil {
		logger.Debug("no .env file loaded, using process environment", "error", err)
	}
	return FromEnv()
}

func FromEnv() Config {
	cfg := Config{
		TelegramToken:         strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramAPI:           stringOrDefault("TELEGRAM_API_BASE", "https://api.telegram.org"),
		TelegramMode:          strings.ToLower(stringOrDefault("TELEGRAM_MODE", ModePolling)),
		TelegramPoll:          intOrDefault("TELEGRAM_POLL_SECONDS", 25),
		TelegramWebhookURL:    strings.TrimSpace(os.Getenv("TELEGRAM_WEBHOOK_URL")),
		TelegramWebhookAddr:   stringOrDefault("TELEGRAM_WEBHOOK_ADDR", ":8443"),
		TelegramWebhookSecret: strings.TrimSpace(os.Getenv("TELEGRAM_WEBHOOK_SECRET")),

		LLMProvider:   strings.ToLower(stringOrDefault("LLM_PROVIDER", ProviderOpenAI)),
		LLMBaseURL:    stringOrDefault("LLM_BASE_URL", "https://api.x.ai/v1"),
		LLMAPIKey:     stringOrDefault("LLM_API_KEY", strings.TrimSpace(os.Getenv("XAI_API_KEY"))),
		LLMModel:      stringOrDefault("LLM_MODEL", "grok-4-fast-non-reasoning"),
		LLMTimeoutSec: intOrDefault("LLM_TIMEOUT_SECONDS", 60),
		LLMMaxTokens:  intOrDefault("LLM_MAX_TOKENS", 2048),

		WebhookHost:          stringOrDefault("GITHUB_WEBHOOK_HOST", "0.0.0.0"),
		GitHubWebhookSecret:  strings.TrimSpace(os.Getenv("GITHUB_WEBHOOK_SECRET")),
		RailwayWebhookSecret: strings.TrimSpace(os.Getenv("RAILWAY_WEBHOOK_SECRET")),

		MemoryStrategy: strings.ToLower(stringOrDefault("MEMORY_STRATEGY", StrategyWindow)),
		MemoryCapacity: intOrDefault("MEMORY_CAPACITY", 10),
		MemoryMaxBytes: intOrDefault("MEMORY_MAX_BYTES", 8000),

		PromptMobile:       boolOrDefault("PROMPT_MOBILE", true),
		PromptSubjective:   boolOrDefault("PROMPT_SUBJECTIVE", false),
		PromptOverrideFile: strings.TrimSpace(os.Getenv("PROMPT_OVERRIDE_FILE")),

		DispatchWorkers:       intOrDefault("DISPATCH_WORKERS", 4),
		RelayDBPath:           strings.TrimSpace(os.Getenv("RELAY_DB_PATH")),
		RelayDigestCron:       strings.TrimSpace(os.Getenv("RELAY_DIGEST_CRON")),
		HeartbeatStaleSeconds: intOrDefault("HEARTBEAT_STALE_SECONDS", 120),
		HeartbeatNotify:       boolOrDefault("HEARTBEAT_NOTIFY", false),
		LogLevel:              strings.ToLower(stringOrDefault("LOG_LEVEL", "info")),
	}

	chatID, err := optionalInt64("GITHUB_PR_CHAT_ID")
	if err != nil {
		cfg.problems = append(cfg.problems, err.Error())
	}
	cfg.GitHubChatID = chatID

	allowed, err := int64List("TELEGRAM_ALLOWED_USER_IDS")
	if err != nil {
		cfg.problems = append(cfg.problems, err.Error())
	}
	cfg.AllowedUserIDs = allowed

	port, err := portOrDefault("GITHUB_WEBHOOK_PORT", 8000)
	if err != nil {
		cfg.problems = append(cfg.problems, err.Error())
	}
	cfg.WebhookPort = port

	// The xAI defaults only apply to the OpenAI-compatible provider.
	if cfg.LLMProvider == ProviderAnthropic {
		cfg.LLMBaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
		cfg.LLMModel = strings.TrimSpace(os.Getenv("LLM_MODEL"))
	}
	return cfg
}

// Validate reports every missing or invalid setting at once.
func (c Config) Validate() error {
	var missing []string
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.LLMAPIKey == "" && requiresAPIKey(c.LLMBaseURL) {
		missing = append(missing, "XAI_API_KEY")
	}
	if c.TelegramMode == ModeWebhook && c.TelegramWebhookURL == "" {
		missing = append(missing, "TELEGRAM_WEBHOOK_URL")
	}

	problems := append([]string(nil), c.problems...)
	switch c.TelegramMode {
	case ModePolling, ModeWebhook:
	default:
		problems = append(problems, fmt.Sprintf("TELEGRAM_MODE must be %s or %s, got %q", ModePolling, ModeWebhook, c.TelegramMode))
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		problems = append(problems, fmt.Sprintf("LLM_PROVIDER must be %s or %s, got %q", ProviderOpenAI, ProviderAnthropic, c.LLMProvider))
	}
	switch c.MemoryStrategy {
	case StrategyWindow, StrategyBudget:
	default:
		problems = append(problems, fmt.Sprintf("MEMORY_STRATEGY must be %s or %s, got %q", StrategyWindow, StrategyBudget, c.MemoryStrategy))
	}
	if c.RelayDigestCron != "" && c.RelayDBPath == "" {
		problems = append(problems, "RELAY_DIGEST_CRON requires RELAY_DB_PATH")
	}

	if len(missing) > 0 {
		err := fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
		if len(problems) > 0 {
			return fmt.Errorf("%w; invalid configuration: %s", err, strings.Join(problems, "; "))
		}
		return err
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) WebhookAddr() string {
	return net.JoinHostPort(c.WebhookHost, strconv.Itoa(c.WebhookPort))
}

// NotificationTargets returns the explicit chat id when set, otherwise the allow-list.
func (c Config) NotificationTargets() []int64 {
	if c.GitHubChatID != 0 {
		return []int64{c.GitHubChatID}
	}
	return append([]int64(nil), c.AllowedUserIDs...)
}

func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func optionalInt64(name string) (int64, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer chat id, got %q", name, value)
	}
	return parsed, nil
}

func int64List(name string) ([]int64, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	result := make([]int64, 0, len(parts))
	seen := map[int64]struct{}{}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s contains a non-integer id %q", name, part)
		}
		if _, exists := seen[parsed]; exists {
			continue
		}
		seen[parsed] = struct{}{}
		result = append(result, parsed)
	}
	return result, nil
}

func portOrDefault(name string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a number, got %q", name, value)
	}
	if parsed < 0 || parsed > 65535 {
		return fallback, fmt.Errorf("%s out of range: %d", name, parsed)
	}
	return parsed, nil
}

func requiresAPIKey(baseURL string) bool {
	lower := strings.ToLower(baseURL)
	if strings.Contains(lower, "localhost") || strings.Contains(lower, "127.0.0.1") || strings.Contains(lower, "ollama") {
		return false
	}
	return true
}
