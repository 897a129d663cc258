package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Execution mode: "paper" or "bridge"
	Mode string

	// Broker bridge credentials (required only in bridge mode)
	BridgeBaseURL    string
	BridgeAPIKey     string
	BridgeClientID   string
	BridgeTOTPSecret string

	// Market data websocket (bridge mode)
	FeedURL string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string

	// Strategy instance definitions
	StrategiesPath string

	// Console log filter (comma-separated instance names, empty = all)
	ConsoleInstances string

	// Paper fill slippage in basis points
	SlippageBps float64

	// Optional alert channels
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		Mode: getEnv("TRADER_MODE", "paper"),

		FeedURL: getEnv("FEED_WS_URL", "ws://localhost:8081/ws"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		StrategiesPath:   getEnv("STRATEGIES_PATH", "strategies.yaml"),
		ConsoleInstances: getEnv("CONSOLE_INSTANCES", ""),
		SlippageBps:      getEnvFloat("SLIPPAGE_BPS", 0),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Mode == "bridge" {
		cfg.BridgeBaseURL = mustEnv("BRIDGE_BASE_URL")
		cfg.BridgeAPIKey = mustEnv("BRIDGE_API_KEY")
		cfg.BridgeClientID = mustEnv("BRIDGE_CLIENT_ID")
		cfg.BridgeTOTPSecret = mustEnv("BRIDGE_TOTP_SECRET")
	}

	return cfg
}

// ParseConsoleInstances parses the ConsoleInstances string into a name list.
// An empty list means every instance logs to the console.
func (c *Config) ParseConsoleInstances() []string {
	parts := strings.Split(c.ConsoleInstances, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		names = append(names, p)
	}
	return names
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}
