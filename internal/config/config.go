package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Role-specific assistant identifiers on the remote service.
	SummaryAssistantID string
	InsightAssistantID string
	KPIAssistantID     string
	ChatAssistantID    string

	DatabaseURL     string
	HTTPPort        string
	LogLevel        string
	JWTSecret       string
	ClientAccessKey string
}

func Load() *Config {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		SummaryAssistantID: getEnv("SUMMARY_ASSISTANT_ID", "asst_lYMPOqnXe86rZ2oPqe6N3bx2"),
		InsightAssistantID: getEnv("INSIGHT_ASSISTANT_ID", "asst_LIuWUGUi5ClNpJMuEAbYQsRs"),
		KPIAssistantID:     getEnv("KPI_ASSISTANT_ID", "asst_p0ajNzziydcju4E9O37JLWtt"),
		ChatAssistantID:    getEnv("CHAT_ASSISTANT_ID", "asst_p0ajNzziydcju4E9O37JLWtt"),
		DatabaseURL:        getEnv("DATABASE_URL", "aidash.db"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		ClientAccessKey:    getEnv("CLIENT_ACCESS_KEY", ""),
	}

	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	if cfg.ClientAccessKey == "" {
		log.Fatal("CLIENT_ACCESS_KEY environment variable is required")
	}

	return cfg
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
