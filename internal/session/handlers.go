package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"interview-coach/internal/transcription"
)

// stale сообщает, что ответ пришел от предыдущей эпохи или в чужой стадии.
// Такие ответы ожидаемы и просто отбрасываются.
func (m *Machine) stale(epoch uint64, what string, stages ...Stage) bool {
	if epoch != m.epoch {
		m.log.Debug("dropping stale response", "what", what, "epoch", epoch, "current", m.epoch)
		return true
	}
	for _, s := range stages {
		if m.stage == s {
			return false
		}
	}
	m.log.Debug("dropping response for another stage", "what", what, "stage", m.stage)
	return true
}

func (m *Machine) onQuestions(epoch uint64, questions []string, err error) {
	if m.stale(epoch, "questions", StageGenerating) {
		return
	}

	if err == nil {
		err = checkQuestions(questions, m.cfg.QuestionCount)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrGeneration, err)
		m.log.Error("question generation failed", "session_id", m.sessionID, "error", err)
		m.opts.Metrics.IncrementGenerationFailures()
		m.cfg = nil
		m.questions = nil
		m.sessionID = ""
		m.lastErr = err
		m.setStage(StageIdle)
		m.emit(GenerationFailed{Err: err})
		return
	}

	m.questions = append([]string(nil), questions...)
	m.setStage(StageReady)
	m.emit(QuestionsReady{Questions: append([]string(nil), questions...)})
}

func checkQuestions(questions []string, want int) error {
	if len(questions) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrQuestionCount, len(questions), want)
	}
	for i, q := range questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("question %d is empty", i)
		}
	}
	return nil
}

func (m *Machine) onStreamStarted(epoch uint64, stream transcription.Stream, err error) {
	if m.stale(epoch, "transcription_stream", StageCalling) {
		if stream != nil {
			if stopErr := stream.Stop(); stopErr != nil {
				m.log.Warn("failed to stop abandoned transcription stream", "error", stopErr)
			}
		}
		return
	}
	if err == nil && stream == nil {
		err = errors.New("source returned no stream")
	}
	if err != nil {
		m.log.Error("failed to start transcription", "session_id", m.sessionID, "error", err)
		m.fail(fmt.Errorf("%w: %w", ErrTranscription, err))
		return
	}

	m.stream = stream
	go m.forward(epoch, stream)
	m.emit(CallStarted{})
	m.ask(m.startAt)
}

// forward переносит события распознавания в цикл машины
func (m *Machine) forward(epoch uint64, stream transcription.Stream) {
	for ev := range stream.Events() {
		ev := ev // per-iteration copy; go directive is 1.21 (pre-1.22 loop semantics)
		m.post(func() { m.onTranscript(epoch, stream, ev) })
	}
	m.post(func() { m.onStreamClosed(epoch, stream) })
}

func (m *Machine) onTranscript(epoch uint64, stream transcription.Stream, ev transcription.Event) {
	if m.stale(epoch, "transcript_event", StageCalling) || m.stream != stream {
		return
	}

	switch ev.Kind {
	case transcription.KindStarted:
		m.log.Debug("transcription started", "session_id", m.sessionID)
	case transcription.KindInterim:
		if text := strings.TrimSpace(ev.Text); text != "" {
			m.emit(InterimTranscript{Text: text})
		}
	case transcription.KindFinal:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return
		}
		if text == m.lastFinal {
			m.log.Debug("dropping duplicate final transcript", "session_id", m.sessionID)
			return
		}
		m.lastFinal = text
		m.submit(text, m.pointer)
	case transcription.KindEnded:
		m.interruptCall(fmt.Errorf("%w: stream ended", ErrTranscription))
	case transcription.KindError:
		cause := ev.Err
		if cause == nil {
			cause = errors.New(ev.Text)
		}
		m.interruptCall(fmt.Errorf("%w: %w", ErrTranscription, cause))
	default:
		m.log.Warn("unknown transcription event", "kind", ev.Kind)
	}
}

func (m *Machine) onStreamClosed(epoch uint64, stream transcription.Stream) {
	if epoch != m.epoch || m.stage != StageCalling || m.stream != stream {
		return
	}
	m.interruptCall(fmt.Errorf("%w: stream closed", ErrTranscription))
}

// interruptCall досрочно завершает звонок, сохраняя собранные данные
func (m *Machine) interruptCall(err error) {
	idx := m.pointer
	m.log.Warn("call interrupted by transcription failure", "session_id", m.sessionID, "question_index", idx, "error", err)
	m.releaseStream()
	m.lastErr = err
	m.interrupted = true
	m.emit(TranscriptionFailed{QuestionIndex: idx, Err: err})
	m.emit(CallEnded{Interrupted: true})
	m.enterAnalyzing()
}

func (m *Machine) onAnalysis(epoch, seq uint64, idx int, fb AnswerFeedback, err error) {
	if m.stale(epoch, "analysis", StageCalling, StageAnalyzing) {
		return
	}
	if seq != m.callSeq {
		m.log.Debug("dropping analysis from a finished call", "question_index", idx)
		return
	}
	rec, ok := m.answers[idx]
	if !ok || rec.Status != StatusPending {
		m.log.Debug("dropping analysis for resolved answer", "question_index", idx)
		return
	}

	if err == nil {
		fb.QuestionIndex = idx
		err = fb.Validate()
	}
	if err != nil {
		err = fmt.Errorf("%w: question %d: %w", ErrAnalysis, idx, err)
		m.log.Warn("answer analysis failed", "session_id", m.sessionID, "question_index", idx, "error", err)
		rec.Status = StatusFailed
		rec.Error = err.Error()
		m.opts.Metrics.IncrementAnswersFailed()
		m.emit(AnalysisFailed{QuestionIndex: idx, Err: err})
	} else {
		rec.Status = StatusAnalyzed
		rec.Feedback = &fb
		m.opts.Metrics.IncrementAnswersAnalyzed()
		m.emit(AnalysisCompleted{Feedback: fb})
	}

	if m.stage == StageAnalyzing {
		m.checkJoin()
	}
}

func (m *Machine) enterAnalyzing() {
	m.setStage(StageAnalyzing)

	epoch := m.epoch
	m.stopJoinTimer()
	seq := m.joinSeq
	m.joinTimer = time.AfterFunc(m.opts.JoinTimeout, func() {
		m.post(func() { m.onJoinTimeout(epoch, seq) })
	})
	m.checkJoin()
}

// checkJoin переоценивает условие завершения при каждом новом разборе
func (m *Machine) checkJoin() {
	for _, rec := range m.answers {
		if rec.Status == StatusPending {
			return
		}
	}
	m.finalize()
}

func (m *Machine) onJoinTimeout(epoch, seq uint64) {
	if m.stale(epoch, "join_timeout", StageAnalyzing) || seq != m.joinSeq {
		return
	}
	m.log.Warn("analysis join timed out, using partial results", "session_id", m.sessionID, "timeout", m.opts.JoinTimeout)
	m.finalize()
}

func (m *Machine) finalize() {
	m.stopJoinTimer()
	// оставшиеся разборы больше не нужны
	m.callCancel()

	agg, feedback := aggregateRecords(m.answers)
	result := Result{
		SessionID:   m.sessionID,
		Aggregate:   agg,
		PerQuestion: feedback,
		Transcript:  append([]TranscriptEntry(nil), m.transcript...),
		Partial:     len(agg.Pending) > 0 || len(agg.Failed) > 0,
	}
	if result.PerQuestion == nil {
		result.PerQuestion = []AnswerFeedback{}
	}
	m.result = &result

	m.setStage(StageFeedback)
	m.opts.Metrics.IncrementSessionsCompleted()
	m.emit(FeedbackReady{Result: result})
	m.save()
}

func (m *Machine) onReport(epoch uint64, report Report, err error) {
	if m.stale(epoch, "report", StageFeedback) || !m.reportPending {
		return
	}
	m.reportPending = false

	if err == nil && strings.TrimSpace(report.Summary) == "" {
		err = errors.New("empty summary")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrReport, err)
		m.log.Warn("detailed report failed", "session_id", m.sessionID, "error", err)
		m.lastErr = err
		m.emit(ReportFailed{Err: err})
		return
	}

	m.report = &report
	m.setStage(StageDone)
	m.emit(ReportReady{Report: report})
	m.save()
}
