package session

import (
	"context"
	"log/slog"
	"time"

	"interview-coach/internal/metrics"
)

// Generator - клиент сервиса генерации вопросов и разборов
type Generator interface {
	GenerateQuestions(ctx context.Context, cfg Config) ([]string, error)
	AnalyzeAnswer(ctx context.Context, req AnalysisRequest) (AnswerFeedback, error)
	SummarizeSession(ctx context.Context, cfg Config, result Result) (Report, error)
}

// Saver - внешний слой хранения, машина вызывает только Save
type Saver interface {
	Save(ctx context.Context, rec Record) error
}

// Значения по умолчанию для таймаутов
const (
	DefaultJoinTimeout       = 20 * time.Second
	DefaultGenerationTimeout = 90 * time.Second
	DefaultAnalysisTimeout   = 60 * time.Second
	DefaultReportTimeout     = 90 * time.Second
	DefaultSaveTimeout       = 10 * time.Second
	DefaultEventBuffer       = 256
)

// Options настраивает машину состояний
type Options struct {
	Limits Limits

	// JoinTimeout ограничивает ожидание разборов после окончания звонка
	JoinTimeout       time.Duration
	GenerationTimeout time.Duration
	AnalysisTimeout   time.Duration
	ReportTimeout     time.Duration
	SaveTimeout       time.Duration
	EventBuffer       int

	Saver   Saver
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Limits.MinQuestions <= 0 {
		o.Limits.MinQuestions = DefaultMinQuestions
	}
	if o.Limits.MaxQuestions < o.Limits.MinQuestions {
		o.Limits.MaxQuestions = DefaultMaxQuestions
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = DefaultGenerationTimeout
	}
	if o.AnalysisTimeout <= 0 {
		o.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if o.ReportTimeout <= 0 {
		o.ReportTimeout = DefaultReportTimeout
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = DefaultSaveTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
