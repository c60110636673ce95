package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load загружает конфигурацию из YAML файла, пропущенные поля берутся из Default
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", filename, err)
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML: %w", err)
	}

	// Валидация конфигурации
	err = validateConfig(config)
	if err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return config, nil
}

// LoadOrDefault как Load, но отсутствующий файл не считается ошибкой
func LoadOrDefault(filename string) (*Config, error) {
	config, err := Load(filename)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	iv := config.Interview
	if iv.MinQuestions <= 0 {
		return fmt.Errorf("min_questions должно быть больше 0")
	}

	if iv.MaxQuestions < iv.MinQuestions {
		return fmt.Errorf("max_questions (%d) меньше min_questions (%d)", iv.MaxQuestions, iv.MinQuestions)
	}

	if iv.DefaultQuestionCount < iv.MinQuestions || iv.DefaultQuestionCount > iv.MaxQuestions {
		return fmt.Errorf("default_question_count (%d) вне диапазона %d..%d",
			iv.DefaultQuestionCount, iv.MinQuestions, iv.MaxQuestions)
	}

	timeouts := map[string]int64{
		"generation": int64(config.Timeouts.Generation),
		"analysis":   int64(config.Timeouts.Analysis),
		"join":       int64(config.Timeouts.Join),
		"report":     int64(config.Timeouts.Report),
		"save":       int64(config.Timeouts.Save),
	}
	for name, value := range timeouts {
		if value <= 0 {
			return fmt.Errorf("timeouts.%s должен быть больше 0", name)
		}
	}

	if config.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts должно быть больше 0")
	}

	if config.Retry.MaxDelay < config.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay не может быть меньше base_delay")
	}

	for name, t := range map[string]float64{
		"questions": config.Temperatures.Questions,
		"analysis":  config.Temperatures.Analysis,
		"summary":   config.Temperatures.Summary,
	} {
		if t < 0 || t > 2 {
			return fmt.Errorf("temperatures.%s должна быть от 0 до 2", name)
		}
	}

	if config.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer должно быть больше 0")
	}

	return nil
}
