package config

import (
	"time"

	"interview-coach/internal/interviewer"
	"interview-coach/internal/session"
)

// Config представляет конфигурацию интервью из config/interview.yaml
type Config struct {
	Interview    InterviewConfig `yaml:"interview"`
	Timeouts     TimeoutsConfig  `yaml:"timeouts"`
	Retry        RetryConfig     `yaml:"retry"`
	Temperatures Temperatures    `yaml:"temperatures"`
	EventBuffer  int             `yaml:"event_buffer"`
}

// InterviewConfig содержит границы количества вопросов
type InterviewConfig struct {
	MinQuestions         int `yaml:"min_questions"`
	MaxQuestions         int `yaml:"max_questions"`
	DefaultQuestionCount int `yaml:"default_question_count"`
}

// TimeoutsConfig - таймауты внешних вызовов и ожидания разборов
type TimeoutsConfig struct {
	Generation time.Duration `yaml:"generation"`
	Analysis   time.Duration `yaml:"analysis"`
	Join       time.Duration `yaml:"join"`
	Report     time.Duration `yaml:"report"`
	Save       time.Duration `yaml:"save"`
}

type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

type Temperatures struct {
	Questions float64 `yaml:"questions"`
	Analysis  float64 `yaml:"analysis"`
	Summary   float64 `yaml:"summary"`
}

// Default возвращает конфигурацию, с которой работает приложение без файла
func Default() *Config {
	return &Config{
		Interview: InterviewConfig{
			MinQuestions:         session.DefaultMinQuestions,
			MaxQuestions:         session.DefaultMaxQuestions,
			DefaultQuestionCount: 5,
		},
		Timeouts: TimeoutsConfig{
			Generation: session.DefaultGenerationTimeout,
			Analysis:   session.DefaultAnalysisTimeout,
			Join:       session.DefaultJoinTimeout,
			Report:     session.DefaultReportTimeout,
			Save:       session.DefaultSaveTimeout,
		},
		Retry: RetryConfig{
			Attempts:  interviewer.DefaultAttempts,
			BaseDelay: interviewer.DefaultBaseDelay,
			MaxDelay:  interviewer.DefaultMaxDelay,
		},
		Temperatures: Temperatures{
			Questions: 0.7,
			Analysis:  0.2,
			Summary:   0.4,
		},
		EventBuffer: session.DefaultEventBuffer,
	}
}

// Методы для удобного доступа к конфигурации

func (c *Config) Limits() session.Limits {
	return session.Limits{
		MinQuestions: c.Interview.MinQuestions,
		MaxQuestions: c.Interview.MaxQuestions,
	}
}

// SessionOptions заполняет лимиты и таймауты машины, зависимости добавляет вызывающий
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Limits:            c.Limits(),
		JoinTimeout:       c.Timeouts.Join,
		GenerationTimeout: c.Timeouts.Generation,
		AnalysisTimeout:   c.Timeouts.Analysis,
		ReportTimeout:     c.Timeouts.Report,
		SaveTimeout:       c.Timeouts.Save,
		EventBuffer:       c.EventBuffer,
	}
}

func (c *Config) InterviewerOptions(maxTokens int) interviewer.Options {
	return interviewer.Options{
		QuestionsTemperature: c.Temperatures.Questions,
		AnalysisTemperature:  c.Temperatures.Analysis,
		SummaryTemperature:   c.Temperatures.Summary,
		MaxTokens:            maxTokens,
		Retry: interviewer.RetryPolicy{
			Attempts:  c.Retry.Attempts,
			BaseDelay: c.Retry.BaseDelay,
			MaxDelay:  c.Retry.MaxDelay,
		},
	}
}
