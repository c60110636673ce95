package session

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"interview-coach/internal/transcription"
)

// StartGeneration проверяет конфигурацию и запускает генерацию вопросов.
// Ошибка возвращается только для невалидной конфигурации; повторный вызов
// во время генерации ничего не делает.
func (m *Machine) StartGeneration(cfg Config) error {
	if err := cfg.Validate(m.opts.Limits); err != nil {
		return err
	}
	cfg = copyConfig(cfg)
	return m.do(func() { m.startGeneration(cfg) })
}

// StartCall начинает звонок: захватывает поток распознавания и задает первый вопрос
func (m *Machine) StartCall() error {
	return m.do(m.startCall)
}

// SubmitAnswer добавляет ответ кандидата на вопрос questionIndex
func (m *Machine) SubmitAnswer(text string, questionIndex int) error {
	return m.do(func() { m.submitAnswer(text, questionIndex) })
}

// EndCall завершает звонок и переходит к ожиданию разборов
func (m *Machine) EndCall() error {
	return m.do(m.endCall)
}

// ResumeCall продолжает оборвавшийся звонок с вопроса questionIndex.
// Собранные ответы сохраняются, заново задаются только вопросы без ответа.
func (m *Machine) ResumeCall(questionIndex int) error {
	return m.do(func() { m.resumeCall(questionIndex) })
}

// RetryAnalysis повторяет неудавшийся разбор ответа, пока итог еще не подведен
func (m *Machine) RetryAnalysis(questionIndex int) error {
	return m.do(func() { m.retryAnalysis(questionIndex) })
}

// RetrySameQuestions возвращает сессию в ready с теми же вопросами
func (m *Machine) RetrySameQuestions() error {
	return m.do(m.retrySameQuestions)
}

// RequestDetailedReport запрашивает развернутый итоговый разбор
func (m *Machine) RequestDetailedReport() error {
	return m.do(m.requestDetailedReport)
}

// Reset сбрасывает сессию из любой стадии в idle
func (m *Machine) Reset() error {
	return m.do(m.reset)
}

func (m *Machine) ignore(command string) {
	m.log.Warn("command ignored in current stage", "command", command, "stage", m.stage, "session_id", m.sessionID)
}

func (m *Machine) startGeneration(cfg Config) {
	if m.stage != StageIdle {
		m.ignore("start_generation")
		return
	}

	m.bumpEpoch()
	m.sessionID = uuid.New().String()
	m.cfg = &cfg
	m.questions = nil
	m.lastErr = nil
	m.clearCall()
	m.setStage(StageGenerating)
	m.opts.Metrics.IncrementSessionsStarted()

	epoch := m.epoch
	ctx, cancel := context.WithTimeout(m.epochCtx, m.opts.GenerationTimeout)
	go func() {
		defer cancel()
		var questions []string
		err := guard(func() (e error) {
			questions, e = m.gen.GenerateQuestions(ctx, cfg)
			return e
		})
		m.post(func() { m.onQuestions(epoch, questions, err) })
	}()
}

func (m *Machine) startCall() {
	if m.stage != StageReady {
		m.ignore("start_call")
		return
	}

	m.bumpEpoch()
	m.clearCall()
	m.lastErr = nil
	m.setStage(StageCalling)
	m.openStream()
}

func (m *Machine) openStream() {
	epoch := m.epoch
	ctx := m.epochCtx
	go func() {
		var stream transcription.Stream
		err := guard(func() (e error) {
			stream, e = m.source.Start(ctx)
			return e
		})
		m.post(func() { m.onStreamStarted(epoch, stream, err) })
	}()
}

func (m *Machine) submitAnswer(text string, questionIndex int) {
	if m.stage != StageCalling {
		m.ignore("submit_answer")
		return
	}
	m.submit(strings.TrimSpace(text), questionIndex)
}

// submit - общий путь для набранных ответов и финальных транскриптов
func (m *Machine) submit(text string, idx int) {
	if text == "" {
		return
	}
	if idx < -1 || idx > m.pointer || idx >= len(m.questions) {
		m.log.Warn("answer for a question that was not asked", "session_id", m.sessionID, "question_index", idx, "pointer", m.pointer)
		return
	}

	entry := TranscriptEntry{Role: RoleCandidate, Text: text, Timestamp: m.opts.Now()}
	if idx >= 0 {
		entry.QuestionIndex = intPtr(idx)
	}
	m.transcript = append(m.transcript, entry)
	m.emit(MessageReceived{Entry: entry})

	if idx < 0 {
		return
	}
	m.analyze(idx, text)

	// когда вопросов без ответа не осталось, ждем явного EndCall
	if idx == m.pointer {
		if next := m.nextUnanswered(idx); next >= 0 {
			m.ask(next)
		}
	}
}

func (m *Machine) nextUnanswered(after int) int {
	for i := after + 1; i < len(m.questions); i++ {
		if _, answered := m.answers[i]; !answered {
			return i
		}
	}
	return -1
}

func (m *Machine) ask(idx int) {
	m.pointer = idx
	// одинаковый ответ на следующий вопрос - это новый ответ, а не дубль
	m.lastFinal = ""
	entry := TranscriptEntry{
		Role:          RoleInterviewer,
		Text:          m.questions[idx],
		Timestamp:     m.opts.Now(),
		QuestionIndex: intPtr(idx),
	}
	m.transcript = append(m.transcript, entry)
	m.emit(MessageReceived{Entry: entry})
	m.opts.Metrics.IncrementQuestionsAsked()
}

// analyze запускает разбор не более одного раза на индекс вопроса
func (m *Machine) analyze(idx int, answer string) {
	if _, exists := m.answers[idx]; exists {
		m.log.Debug("duplicate answer, analysis already requested", "session_id", m.sessionID, "question_index", idx)
		return
	}
	rec := &AnswerRecord{QuestionIndex: idx, Answer: answer, Status: StatusPending}
	m.answers[idx] = rec
	m.launchAnalysis(rec)
}

func (m *Machine) launchAnalysis(rec *AnswerRecord) {
	req := AnalysisRequest{
		QuestionIndex:   rec.QuestionIndex,
		Question:        m.questions[rec.QuestionIndex],
		Answer:          rec.Answer,
		Role:            m.cfg.Role,
		ExperienceLevel: m.cfg.ExperienceLevel,
	}
	epoch, seq := m.epoch, m.callSeq
	ctx, cancel := context.WithTimeout(m.callCtx, m.opts.AnalysisTimeout)
	go func() {
		defer cancel()
		var fb AnswerFeedback
		err := guard(func() (e error) {
			fb, e = m.gen.AnalyzeAnswer(ctx, req)
			return e
		})
		m.post(func() { m.onAnalysis(epoch, seq, req.QuestionIndex, fb, err) })
	}()
}

func (m *Machine) endCall() {
	if m.stage != StageCalling {
		m.ignore("end_call")
		return
	}
	m.releaseStream()
	m.emit(CallEnded{})
	m.enterAnalyzing()
}

func (m *Machine) resumeCall(idx int) {
	if (m.stage != StageAnalyzing && m.stage != StageFeedback) || !m.interrupted {
		m.ignore("resume_call")
		return
	}
	if idx < 0 || idx >= len(m.questions) || idx > m.pointer {
		m.log.Warn("cannot resume from a question that was not asked", "session_id", m.sessionID, "question_index", idx, "pointer", m.pointer)
		return
	}
	if rec, ok := m.answers[idx]; ok {
		if rec.Status != StatusFailed {
			m.log.Warn("question already answered", "session_id", m.sessionID, "question_index", idx, "status", rec.Status)
			return
		}
		delete(m.answers, idx)
	}

	m.stopJoinTimer()
	// итог отменил незавершенные разборы, запускаем их заново
	if m.callCtx.Err() != nil {
		m.callSeq++
		m.callCtx, m.callCancel = context.WithCancel(m.epochCtx)
		for _, rec := range m.answers {
			if rec.Status == StatusPending {
				m.launchAnalysis(rec)
			}
		}
	}
	m.interrupted = false
	m.lastErr = nil
	m.result = nil
	m.report = nil
	m.reportPending = false
	m.startAt = idx
	m.log.Info("resuming interrupted call", "session_id", m.sessionID, "question_index", idx)
	m.setStage(StageCalling)
	m.openStream()
}

func (m *Machine) retryAnalysis(idx int) {
	if m.stage != StageCalling && m.stage != StageAnalyzing {
		m.ignore("retry_analysis")
		return
	}
	rec, ok := m.answers[idx]
	if !ok || rec.Status != StatusFailed {
		m.ignore("retry_analysis")
		return
	}
	rec.Status = StatusPending
	rec.Error = ""
	m.launchAnalysis(rec)
}

func (m *Machine) retrySameQuestions() {
	if m.stage != StageFeedback {
		m.ignore("retry_same_questions")
		return
	}
	m.bumpEpoch()
	m.clearCall()
	m.lastErr = nil
	m.setStage(StageReady)
}

func (m *Machine) requestDetailedReport() {
	if m.stage != StageFeedback || m.reportPending || m.result == nil {
		m.ignore("request_detailed_report")
		return
	}
	m.reportPending = true

	cfg := copyConfig(*m.cfg)
	result := *m.result
	epoch := m.epoch
	ctx, cancel := context.WithTimeout(m.epochCtx, m.opts.ReportTimeout)
	go func() {
		defer cancel()
		var report Report
		err := guard(func() (e error) {
			report, e = m.gen.SummarizeSession(ctx, cfg, result)
			return e
		})
		m.post(func() { m.onReport(epoch, report, err) })
	}()
}

func (m *Machine) reset() {
	m.releaseStream()
	m.stopJoinTimer()
	m.bumpEpoch()
	m.sessionID = ""
	m.cfg = nil
	m.questions = nil
	m.lastErr = nil
	m.clearCall()
	m.setStage(StageIdle)
}
