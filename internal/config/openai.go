package config

import (
	"fmt"
	"time"

	"interview-coach/internal/api"
)

type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Timeout     time.Duration
}

// LoadOpenAIConfig загружает конфигурацию OpenAI из переменных окружения
func LoadOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      getEnv("OPENAI_API_KEY", ""),
		Model:       getEnv("OPENAI_MODEL", api.DefaultModel),
		BaseURL:     getEnv("OPENAI_BASE_URL", api.DefaultBaseURL),
		MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", api.DefaultMaxTokens),
		Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", api.DefaultTimeout),
	}
}

// ValidateConfig проверяет корректность конфигурации
func (c *OpenAIConfig) ValidateConfig() error {
	if c.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("OPENAI_MAX_TOKENS must be positive")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("OPENAI_TIMEOUT must be positive")
	}

	return nil
}

// ClientOptions переводит конфигурацию в параметры HTTP клиента
func (c *OpenAIConfig) ClientOptions() api.ClientOptions {
	return api.ClientOptions{
		BaseURL:   c.BaseURL,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Timeout:   c.Timeout,
	}
}

// GetModelInfo возвращает информацию о используемой модели
func (c *OpenAIConfig) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"model":      c.Model,
		"max_tokens": c.MaxTokens,
		"base_url":   c.BaseURL,
		"provider":   "OpenAI",
	}
}
