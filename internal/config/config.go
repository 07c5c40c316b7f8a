package config

import (
	"os"
	"strconv"

	"gopivot/internal/errors"
	"gopivot/models"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	AI       models.AIConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		AI: models.AIConfig{
			OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),
			SystemContext: os.Getenv("LLM_SYSTEM_CONTEXT"),
			MaxTokens:     getEnvInt("LLM_MAX_TOKENS", 4000),
			Temperature:   getEnvFloat("LLM_TEMPERATURE", 0.1),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
	}

	if config.Database.URL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	if config.AI.OpenAIKey == "" {
		return nil, errors.ConfigInvalid("OPENAI_API_KEY is required")
	}

	return config, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
