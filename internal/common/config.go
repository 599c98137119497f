package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Telegram TelegramConfig
	OCR      OCRConfig
	Store    StoreConfig
	Improve  ImproveConfig
	Session  SessionConfig
}

// TelegramConfig holds transport-related configuration
type TelegramConfig struct {
	BotToken    string
	WebhookAddr string
	// SecretToken is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token
	// and lets the handler reject spoofed deliveries.
	SecretToken string
	SendTimeout time.Duration
}

// OCRConfig holds extraction-related configuration
type OCRConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Languages   string // tesseract language set, default "rus+eng"
	DPI         int    // rasterization DPI, default 300
	ChunkPages  int    // default page window for scanned documents
	Workers     int    // concurrent page recognitions per extract call
	TessdataDir string

	ExtractTimeout time.Duration // budget for one whole extract call
}

// StoreConfig holds persistence-related configuration
type StoreConfig struct {
	// Path to the sqlite database file. ":memory:" is valid for tests.
	Path        string
	DialTimeout time.Duration
}

// ImproveConfig holds the optional LLM post-processing configuration
type ImproveConfig struct {
	URL     string
	Model   string
	APIKey  string // empty disables improvement entirely
	Timeout time.Duration
}

// SessionConfig bounds the in-memory conversation state
type SessionConfig struct {
	AwaitingFileTTL time.Duration
	PendingScanTTL  time.Duration
	DedupCapacity   int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			BotToken:    getEnv("BOT_TOKEN", ""),
			WebhookAddr: getEnv("WEBHOOK_ADDR", ":8080"),
			SecretToken: getEnv("WEBHOOK_SECRET", ""),
			SendTimeout: getEnvAsDuration("SEND_TIMEOUT", 30*time.Second),
		},
		OCR: OCRConfig{
			Pdftotext:      getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:       getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:      getEnv("TESSERACT_BIN", "tesseract"),
			Languages:      getEnv("OCR_LANGUAGES", "rus+eng"),
			DPI:            getEnvAsInt("OCR_DPI", 300),
			ChunkPages:     getEnvAsInt("OCR_CHUNK_PAGES", 10),
			Workers:        getEnvAsInt("OCR_WORKERS", 4),
			TessdataDir:    getEnv("TESSDATA_PREFIX", ""),
			ExtractTimeout: getEnvAsDuration("OCR_EXTRACT_TIMEOUT", 3*time.Minute),
		},
		Store: StoreConfig{
			Path:        getEnv("DB_PATH", "pdfscribe.db"),
			DialTimeout: getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Improve: ImproveConfig{
			URL:     getEnv("IMPROVE_URL", "https://openrouter.ai/api/v1/chat/completions"),
			Model:   getEnv("IMPROVE_MODEL", "meta-llama/llama-3-8b-instruct:free"),
			APIKey:  getEnv("OPENROUTER_API_KEY", ""),
			Timeout: getEnvAsDuration("IMPROVE_TIMEOUT", 45*time.Second),
		},
		Session: SessionConfig{
			AwaitingFileTTL: getEnvAsDuration("AWAITING_FILE_TTL", 10*time.Minute),
			PendingScanTTL:  getEnvAsDuration("PENDING_SCAN_TTL", 15*time.Minute),
			DedupCapacity:   getEnvAsInt("DEDUP_CAPACITY", 8192),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return NewAppError("CONFIG_ERROR", "BOT_TOKEN is required", ErrInvalidInput)
	}
	if c.Telegram.WebhookAddr == "" {
		return NewAppError("CONFIG_ERROR", "WEBHOOK_ADDR is required", ErrInvalidInput)
	}
	if c.OCR.ChunkPages <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_CHUNK_PAGES must be positive", ErrInvalidInput)
	}
	if c.OCR.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_WORKERS must be positive", ErrInvalidInput)
	}
	return nil
}
