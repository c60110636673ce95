package metrics

import (
	"sync"
	"time"
)

// Metrics - счетчики процесса. Nil-указатель допустим: методы ничего не делают.
type Metrics struct {
	mu                 sync.RWMutex
	sessionsStarted    int64
	sessionsCompleted  int64
	generationFailures int64
	questionsAsked     int64
	answersAnalyzed    int64
	answersFailed      int64
	apiCallsTotal      int64
	apiCallsSuccessful int64
	lastUpdateTime     time.Time
}

// Snapshot - копия счетчиков для отдачи наружу
type Snapshot struct {
	SessionsStarted    int64     `json:"sessions_started"`
	SessionsCompleted  int64     `json:"sessions_completed"`
	GenerationFailures int64     `json:"generation_failures"`
	QuestionsAsked     int64     `json:"questions_asked"`
	AnswersAnalyzed    int64     `json:"answers_analyzed"`
	AnswersFailed      int64     `json:"answers_failed"`
	APICallsTotal      int64     `json:"api_calls_total"`
	APICallsSuccessful int64     `json:"api_calls_successful"`
	LastUpdateTime     time.Time `json:"last_update_time"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		lastUpdateTime: time.Now(),
	}
}

func (m *Metrics) add(counter *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter++
	m.lastUpdateTime = time.Now()
}

func (m *Metrics) IncrementSessionsStarted() {
	if m == nil {
		return
	}
	m.add(&m.sessionsStarted)
}

func (m *Metrics) IncrementSessionsCompleted() {
	if m == nil {
		return
	}
	m.add(&m.sessionsCompleted)
}

func (m *Metrics) IncrementGenerationFailures() {
	if m == nil {
		return
	}
	m.add(&m.generationFailures)
}

func (m *Metrics) IncrementQuestionsAsked() {
	if m == nil {
		return
	}
	m.add(&m.questionsAsked)
}

func (m *Metrics) IncrementAnswersAnalyzed() {
	if m == nil {
		return
	}
	m.add(&m.answersAnalyzed)
}

func (m *Metrics) IncrementAnswersFailed() {
	if m == nil {
		return
	}
	m.add(&m.answersFailed)
}

func (m *Metrics) IncrementAPICall(success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiCallsTotal++
	if success {
		m.apiCallsSuccessful++
	}
	m.lastUpdateTime = time.Now()
}

func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		SessionsStarted:    m.sessionsStarted,
		SessionsCompleted:  m.sessionsCompleted,
		GenerationFailures: m.generationFailures,
		QuestionsAsked:     m.questionsAsked,
		AnswersAnalyzed:    m.answersAnalyzed,
		AnswersFailed:      m.answersFailed,
		APICallsTotal:      m.apiCallsTotal,
		APICallsSuccessful: m.apiCallsSuccessful,
		LastUpdateTime:     m.lastUpdateTime,
	}
}
