// Package interviewer - клиент сервиса генерации: вопросы, разбор ответов и итоговый отчет.
package interviewer

import (
	"context"
	"fmt"
	"log/slog"

	"interview-coach/internal/api"
	"interview-coach/internal/metrics"
	"interview-coach/internal/prompts"
	"interview-coach/internal/session"
)

// Chatter - транспорт до языковой модели
type Chatter interface {
	Chat(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error)
}

// Options настраивает клиент
type Options struct {
	QuestionsTemperature float64
	AnalysisTemperature  float64
	SummaryTemperature   float64
	MaxTokens            int

	Retry   RetryPolicy
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Service реализует session.Generator поверх Chat Completions
type Service struct {
	chat Chatter
	opts Options
	log  *slog.Logger
}

var _ session.Generator = (*Service)(nil)

// New создает новый сервис интервьюера
func New(chat Chatter, opts Options) *Service {
	opts.Retry = opts.Retry.withDefaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		chat: chat,
		opts: opts,
		log:  opts.Logger.With("component", "interviewer"),
	}
}

// GenerateQuestions запрашивает ровно cfg.QuestionCount вопросов
func (s *Service) GenerateQuestions(ctx context.Context, cfg session.Config) ([]string, error) {
	content, err := s.callOpenAI(ctx, "generate_questions", api.ChatRequest{
		System:      prompts.SystemPrompt,
		Prompt:      prompts.GenerateQuestionsPrompt(cfg),
		Temperature: s.opts.QuestionsTemperature,
		MaxTokens:   s.opts.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации вопросов: %w", err)
	}

	questions, err := parseQuestions(content, cfg.QuestionCount)
	if err != nil {
		s.log.Warn("questions response violates contract", "error", err)
		return nil, err
	}
	return questions, nil
}

// AnalyzeAnswer оценивает один ответ кандидата
func (s *Service) AnalyzeAnswer(ctx context.Context, req session.AnalysisRequest) (session.AnswerFeedback, error) {
	content, err := s.callOpenAI(ctx, "analyze_answer", api.ChatRequest{
		System:      prompts.SystemPrompt,
		Prompt:      prompts.AnalyzeAnswerPrompt(req),
		Temperature: s.opts.AnalysisTemperature,
		MaxTokens:   s.opts.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return session.AnswerFeedback{}, fmt.Errorf("ошибка разбора ответа %d: %w", req.QuestionIndex, err)
	}

	fb, err := parseFeedback(content)
	if err != nil {
		s.log.Warn("analysis response violates contract", "question_index", req.QuestionIndex, "error", err)
		return session.AnswerFeedback{}, err
	}
	fb.QuestionIndex = req.QuestionIndex
	return fb, nil
}

// SummarizeSession строит развернутый итоговый разбор
func (s *Service) SummarizeSession(ctx context.Context, cfg session.Config, result session.Result) (session.Report, error) {
	content, err := s.callOpenAI(ctx, "summarize_session", api.ChatRequest{
		System:      prompts.SystemPrompt,
		Prompt:      prompts.SessionSummaryPrompt(cfg, askedQuestions(result.Transcript), result),
		Temperature: s.opts.SummaryTemperature,
		MaxTokens:   s.opts.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return session.Report{}, fmt.Errorf("ошибка создания отчета: %w", err)
	}

	report, err := parseReport(content)
	if err != nil {
		s.log.Warn("summary response violates contract", "error", err)
		return session.Report{}, err
	}
	return report, nil
}

// askedQuestions восстанавливает заданные вопросы по журналу звонка
func askedQuestions(transcript []session.TranscriptEntry) []string {
	var questions []string
	for _, entry := range transcript {
		if entry.Role != session.RoleInterviewer || entry.QuestionIndex == nil {
			continue
		}
		idx := *entry.QuestionIndex
		for len(questions) <= idx {
			questions = append(questions, "")
		}
		questions[idx] = entry.Text
	}
	return questions
}
