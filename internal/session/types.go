package session

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Stage представляет стадию жизненного цикла сессии
type Stage string

const (
	StageIdle       Stage = "idle"
	StageGenerating Stage = "generating"
	StageReady      Stage = "ready"
	StageCalling    Stage = "calling"
	StageAnalyzing  Stage = "analyzing"
	StageFeedback   Stage = "feedback"
	StageDone       Stage = "done"
)

// Границы количества вопросов по умолчанию
const (
	DefaultMinQuestions = 3
	DefaultMaxQuestions = 10
)

// Limits задает допустимые границы конфигурации сессии
type Limits struct {
	MinQuestions int
	MaxQuestions int
}

// DefaultLimits возвращает границы по умолчанию
func DefaultLimits() Limits {
	return Limits{MinQuestions: DefaultMinQuestions, MaxQuestions: DefaultMaxQuestions}
}

// Config описывает неизменяемые входные параметры сессии
type Config struct {
	Role            string   `json:"role" yaml:"role"`
	TechStack       []string `json:"tech_stack" yaml:"tech_stack"`
	ExperienceLevel string   `json:"experience_level" yaml:"experience_level"`
	QuestionCount   int      `json:"question_count" yaml:"question_count"`
	Context         string   `json:"context,omitempty" yaml:"context"`
}

// Validate проверяет конфигурацию до того, как она попадет в машину состояний
func (c Config) Validate(limits Limits) error {
	if limits.MinQuestions <= 0 {
		limits.MinQuestions = DefaultMinQuestions
	}
	if limits.MaxQuestions < limits.MinQuestions {
		limits.MaxQuestions = DefaultMaxQuestions
	}

	if strings.TrimSpace(c.Role) == "" {
		return &ConfigError{Field: "role", Reason: "is required"}
	}
	if strings.TrimSpace(c.ExperienceLevel) == "" {
		return &ConfigError{Field: "experience_level", Reason: "is required"}
	}
	if c.QuestionCount < limits.MinQuestions || c.QuestionCount > limits.MaxQuestions {
		return &ConfigError{
			Field:  "question_count",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", limits.MinQuestions, limits.MaxQuestions, c.QuestionCount),
		}
	}
	for i, tech := range c.TechStack {
		if strings.TrimSpace(tech) == "" {
			return &ConfigError{Field: "tech_stack", Reason: fmt.Sprintf("entry %d is empty", i)}
		}
	}
	return nil
}

// Role автора реплики в транскрипте
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// TranscriptEntry представляет одну реплику в журнале звонка
type TranscriptEntry struct {
	Role          Role      `json:"role"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
	QuestionIndex *int      `json:"question_index,omitempty"`
}

// AnswerFeedback представляет разбор одного ответа
type AnswerFeedback struct {
	QuestionIndex int      `json:"question_index"`
	OverallScore  float64  `json:"overall_score"`
	Clarity       float64  `json:"clarity"`
	Relevance     float64  `json:"relevance"`
	Confidence    float64  `json:"confidence"`
	Strengths     []string `json:"strengths,omitempty"`
	Improvements  []string `json:"improvements,omitempty"`
	Comment       string   `json:"comment,omitempty"`
}

// Границы оценок
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// Validate проверяет, что все оценки лежат в допустимых границах
func (f AnswerFeedback) Validate() error {
	scores := []struct {
		name  string
		value float64
	}{
		{"overall_score", f.OverallScore},
		{"clarity", f.Clarity},
		{"relevance", f.Relevance},
		{"confidence", f.Confidence},
	}
	for _, s := range scores {
		if math.IsNaN(s.value) || s.value < MinScore || s.value > MaxScore {
			return fmt.Errorf("%s out of range [%g, %g]: %v", s.name, MinScore, MaxScore, s.value)
		}
	}
	return nil
}

// AnswerStatus отмечает состояние разбора ответа
type AnswerStatus string

const (
	StatusPending  AnswerStatus = "pending"
	StatusAnalyzed AnswerStatus = "analyzed"
	StatusFailed   AnswerStatus = "failed"
)

// AnswerRecord - строка таблицы ответов, ключ - индекс вопроса
type AnswerRecord struct {
	QuestionIndex int             `json:"question_index"`
	Answer        string          `json:"answer"`
	Status        AnswerStatus    `json:"status"`
	Feedback      *AnswerFeedback `json:"feedback,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// AnalysisRequest - запрос на разбор одного ответа
type AnalysisRequest struct {
	QuestionIndex   int
	Question        string
	Answer          string
	Role            string
	ExperienceLevel string
}

// Result - итог сессии, вычисляется при входе в стадию feedback
type Result struct {
	SessionID   string            `json:"session_id"`
	Aggregate   Aggregate         `json:"aggregate"`
	PerQuestion []AnswerFeedback  `json:"per_question"`
	Transcript  []TranscriptEntry `json:"transcript"`
	Partial     bool              `json:"partial"`
}

// Report - развернутый итоговый разбор всей сессии
type Report struct {
	Summary        string   `json:"summary"`
	Strengths      []string `json:"strengths,omitempty"`
	Improvements   []string `json:"improvements,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// Snapshot - копия состояния машины для отображения
type Snapshot struct {
	SessionID     string               `json:"session_id"`
	Stage         Stage                `json:"stage"`
	Config        *Config              `json:"config,omitempty"`
	Questions     []string             `json:"questions,omitempty"`
	QuestionIndex int                  `json:"question_index"`
	// Interrupted - звонок оборвался и его можно продолжить через ResumeCall
	Interrupted   bool                 `json:"interrupted,omitempty"`
	Transcript    []TranscriptEntry    `json:"transcript"`
	Answers       map[int]AnswerRecord `json:"answers"`
	Result        *Result              `json:"result,omitempty"`
	Report        *Report              `json:"report,omitempty"`
	LastError     string               `json:"last_error,omitempty"`
}

// Record - то, что передается во внешний слой хранения
type Record struct {
	SessionID string    `json:"session_id"`
	Stage     Stage     `json:"stage"`
	SavedAt   time.Time `json:"saved_at"`
	Config    Config    `json:"config"`
	Questions []string  `json:"questions"`
	Result    Result    `json:"result"`
	Report    *Report   `json:"report,omitempty"`
}
