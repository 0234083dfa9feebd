package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultOCRModel      = "deepseek-ocr-chat"
	DefaultAnalysisModel = "deepseek-ai/DeepSeek-V3"
)

type Config struct {
	Port string

	// Upstream credentials used by the proxy routes. Never sent to clients.
	OCRBaseURL      string
	OCRAPIKey       string
	OCRModel        string
	AnalysisBaseURL string
	AnalysisAPIKey  string
	AnalysisModel   string

	RequestTimeout time.Duration
	MaxBodyBytes   int64

	// Bot frontend
	TelegramBotToken string
	WebhookURL       string
	BotPort          string
	BackendBaseURL   string
	StageTimeout     time.Duration
	DevMode          bool

	// Settings persistence: memory | redis | postgres
	SettingsStore string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel  string
	LogFormat string
	LogDir    string
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Printf("config: ignoring invalid %s=%q", k, v)
	}
	return def
}

func getEnvBool(k string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		// bare numbers are seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// Load reads the process environment, optionally primed from a .env file in
// the working directory. It is called once at start-up.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}

	return &Config{
		Port: getEnv("PORT", "8000"),

		OCRBaseURL:      getEnv("OCR_BASE_URL", ""),
		OCRAPIKey:       getEnv("OCR_API_KEY", ""),
		OCRModel:        getEnv("OCR_MODEL", DefaultOCRModel),
		AnalysisBaseURL: getEnv("ANALYSIS_BASE_URL", ""),
		AnalysisAPIKey:  getEnv("ANALYSIS_API_KEY", ""),
		AnalysisModel:   getEnv("ANALYSIS_MODEL", DefaultAnalysisModel),

		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 120*time.Second),
		MaxBodyBytes:   int64(getEnvInt("MAX_BODY_BYTES", 20<<20)),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		BotPort:          getEnv("BOT_PORT", "8080"),
		BackendBaseURL:   getEnv("BACKEND_BASE_URL", "http://127.0.0.1:8000"),
		StageTimeout:     getEnvDuration("STAGE_TIMEOUT", 120*time.Second),
		DevMode:          getEnvBool("DEV_MODE", false),

		SettingsStore: strings.ToLower(getEnv("SETTINGS_STORE", "memory")),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogDir:    getEnv("LOG_DIR", ""),
	}
}

// Addr is the listen address of the proxy server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// BotAddr is where the bot serves its webhook and health check.
func (c *Config) BotAddr() string {
	return "0.0.0.0:" + c.BotPort
}
