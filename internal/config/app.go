package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"interview-coach/internal/storage"
	"interview-coach/internal/telegram"
	"interview-coach/internal/transcription"
)

type AppConfig struct {
	OpenAI   OpenAIConfig
	Deepgram DeepgramConfig
	Audio    AudioConfig
	Server   ServerConfig
	Storage  StorageConfig
	Telegram TelegramConfig
}

type DeepgramConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Language    string
	SmartFormat bool
}

type AudioConfig struct {
	FFmpegCommand string
	InputFormat   string
	InputDevice   string
	SampleRate    int
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type TelegramConfig struct {
	Token   string
	APIBase string
	Debug   bool
}

type StorageConfig struct {
	Driver string
	Path   string
}

func LoadAppConfig() *AppConfig {
	return &AppConfig{
		OpenAI: LoadOpenAIConfig(),
		Deepgram: DeepgramConfig{
			APIKey:      getEnv("DEEPGRAM_API_KEY", ""),
			BaseURL:     getEnv("DEEPGRAM_API_BASE", transcription.DefaultDeepgramBase),
			Model:       getEnv("DEEPGRAM_MODEL", transcription.DefaultDeepgramModel),
			Language:    getEnv("DEEPGRAM_LANGUAGE", "en"),
			SmartFormat: getEnvAsBool("DEEPGRAM_SMART_FORMAT", true),
		},
		Audio: AudioConfig{
			FFmpegCommand: getEnv("INTERVIEW_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:   getEnv("INTERVIEW_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:   getEnv("INTERVIEW_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:    getEnvAsInt("INTERVIEW_SAMPLE_RATE", 16000),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsList("SERVER_ALLOWED_ORIGINS"),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", storage.DriverJSON),
			Path:   getEnv("STORAGE_PATH", storage.DefaultResultsDir),
		},
		Telegram: TelegramConfig{
			Token:   getEnv("TELEGRAM_BOT_TOKEN", ""),
			APIBase: getEnv("TELEGRAM_API_BASE", telegram.DefaultAPIBase),
			Debug:   getEnvAsBool("TELEGRAM_DEBUG", false),
		},
	}
}

// ProviderConfig собирает конфигурацию провайдера распознавания
func (c DeepgramConfig) ProviderConfig() transcription.DeepgramConfig {
	return transcription.DeepgramConfig{
		APIKey:      c.APIKey,
		APIBaseURL:  c.BaseURL,
		Model:       c.Model,
		Language:    c.Language,
		SmartFormat: c.SmartFormat,
	}
}

func (c AudioConfig) CaptureConfig() transcription.AudioConfig {
	return transcription.AudioConfig{
		SampleRate:  c.SampleRate,
		Channels:    1,
		InputFormat: c.InputFormat,
		InputDevice: c.InputDevice,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList читает список через запятую, пустые элементы пропускаются
func getEnvAsList(key string) []string {
	var list []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
