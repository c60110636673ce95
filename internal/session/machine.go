// Package session реализует машину состояний интервью: генерация вопросов,
// звонок с распознаванием речи, разбор ответов и итоговая оценка.
//
// Все таблицы машины принадлежат одной горутине. Команды интерфейса, ответы
// сервиса генерации, события распознавания и таймеры доставляются ей как
// сообщения, поэтому порядок изменения состояния всегда последовательный.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"interview-coach/internal/transcription"
)

// Machine - машина состояний одной сессии интервью
type Machine struct {
	gen    Generator
	source transcription.Source
	opts   Options
	log    *slog.Logger

	inbox     chan func()
	events    chan Event
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	saves     sync.WaitGroup

	// очередь событий между циклом и каналом Events
	outMu   sync.Mutex
	outbox  []Event
	outWake chan struct{}

	rootCtx    context.Context
	rootCancel context.CancelFunc

	// поля ниже принадлежат горутине цикла
	epoch       uint64
	epochCtx    context.Context
	epochCancel context.CancelFunc
	callCtx     context.Context
	callCancel  context.CancelFunc
	callSeq     uint64

	sessionID     string
	stage         Stage
	cfg           *Config
	questions     []string
	pointer       int
	transcript    []TranscriptEntry
	answers       map[int]*AnswerRecord
	lastFinal     string
	startAt       int
	interrupted   bool
	stream        transcription.Stream
	joinTimer     *time.Timer
	joinSeq       uint64
	result        *Result
	report        *Report
	reportPending bool
	lastErr       error
}

// New создает машину в стадии idle и запускает ее цикл
func New(gen Generator, source transcription.Source, opts Options) *Machine {
	opts = opts.withDefaults()
	rootCtx, rootCancel := context.WithCancel(context.Background())

	m := &Machine{
		gen:        gen,
		source:     source,
		opts:       opts,
		log:        opts.Logger.With("component", "session"),
		inbox:      make(chan func()),
		events:     make(chan Event, opts.EventBuffer),
		quit:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		outWake:    make(chan struct{}, 1),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		stage:      StageIdle,
		pointer:    -1,
		answers:    make(map[int]*AnswerRecord),
	}
	m.epochCtx, m.epochCancel = context.WithCancel(rootCtx)
	m.callCtx, m.callCancel = context.WithCancel(m.epochCtx)

	go m.run()
	go m.pump()
	return m
}

// Events возвращает единственный канал событий машины.
// Канал закрывается после Close, когда очередь событий доставлена
// или читать ее уже некому.
func (m *Machine) Events() <-chan Event {
	return m.events
}

// Close останавливает цикл, освобождает микрофон и отменяет запросы.
// Начатые сохранения дожидаются завершения в пределах SaveTimeout.
func (m *Machine) Close() error {
	m.closeOnce.Do(func() {
		close(m.quit)
	})
	<-m.loopDone
	m.saves.Wait()
	return nil
}

// Snapshot возвращает копию текущего состояния
func (m *Machine) Snapshot() Snapshot {
	var snap Snapshot
	if err := m.do(func() { snap = m.snapshot() }); err != nil {
		return Snapshot{Stage: StageIdle, QuestionIndex: -1}
	}
	return snap
}

func (m *Machine) run() {
	defer close(m.loopDone)

	for {
		select {
		case fn := <-m.inbox:
			m.safely(fn)
		case <-m.quit:
			m.teardown()
			return
		}
	}
}

// safely выполняет сообщение цикла, превращая панику в фатальную ошибку
func (m *Machine) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := panicError(r)
			m.log.Error("session handler panicked", "error", err)
			m.fail(err)
		}
	}()
	fn()
}

func (m *Machine) teardown() {
	m.releaseStream()
	m.stopJoinTimer()
	m.rootCancel()
}

// do выполняет fn в цикле и ждет завершения
func (m *Machine) do(fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case m.inbox <- wrapped:
	case <-m.quit:
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-m.loopDone:
		return ErrClosed
	}
}

// post доставляет результат асинхронной операции в цикл
func (m *Machine) post(fn func()) {
	select {
	case m.inbox <- fn:
	case <-m.quit:
	}
}

// emit ставит событие в очередь доставки. Цикл никогда не ждет читателя;
// при переполненной очереди отбрасываются только промежуточные транскрипты.
func (m *Machine) emit(ev Event) {
	m.outMu.Lock()
	if _, interim := ev.(InterimTranscript); interim && len(m.outbox) >= m.opts.EventBuffer {
		m.outMu.Unlock()
		m.log.Debug("event backlog is full, dropping interim transcript", "session_id", m.sessionID)
		return
	}
	m.outbox = append(m.outbox, ev)
	m.outMu.Unlock()

	select {
	case m.outWake <- struct{}{}:
	default:
	}
}

// pump доставляет события в Events по порядку
func (m *Machine) pump() {
	defer close(m.events)

	for {
		m.outMu.Lock()
		batch := m.outbox
		m.outbox = nil
		m.outMu.Unlock()

		for i, ev := range batch {
			select {
			case m.events <- ev:
			case <-m.loopDone:
				// после Close ждать медленного читателя незачем
				m.flushAfterClose(batch[i:])
				return
			}
		}

		select {
		case <-m.outWake:
		case <-m.loopDone:
			m.outMu.Lock()
			rest := m.outbox
			m.outbox = nil
			m.outMu.Unlock()
			m.flushAfterClose(rest)
			return
		}
	}
}

// flushAfterClose отдает остаток очереди только в свободное место буфера
func (m *Machine) flushAfterClose(rest []Event) {
	for _, ev := range rest {
		select {
		case m.events <- ev:
		default:
			m.log.Debug("session closed, dropping undelivered events", "count", len(rest))
			return
		}
	}
}

func (m *Machine) setStage(stage Stage) {
	if m.stage == stage {
		return
	}
	from := m.stage
	m.stage = stage
	m.log.Debug("stage changed", "session_id", m.sessionID, "from", from, "to", stage)
	m.emit(StageChanged{From: from, To: stage})
}

// bumpEpoch делает все незавершенные асинхронные ответы устаревшими
func (m *Machine) bumpEpoch() {
	m.epochCancel()
	m.epoch++
	m.epochCtx, m.epochCancel = context.WithCancel(m.rootCtx)
	m.callCtx, m.callCancel = context.WithCancel(m.epochCtx)
}

func (m *Machine) releaseStream() {
	if m.stream == nil {
		return
	}
	stream := m.stream
	m.stream = nil
	if err := stream.Stop(); err != nil {
		m.log.Warn("failed to stop transcription stream", "session_id", m.sessionID, "error", err)
	}
}

func (m *Machine) stopJoinTimer() {
	// уже сработавший таймер мог успеть поставить сообщение в очередь
	m.joinSeq++
	if m.joinTimer != nil {
		m.joinTimer.Stop()
		m.joinTimer = nil
	}
}

func (m *Machine) clearCall() {
	m.pointer = -1
	m.transcript = nil
	m.answers = make(map[int]*AnswerRecord)
	m.lastFinal = ""
	m.startAt = 0
	m.interrupted = false
	m.result = nil
	m.report = nil
	m.reportPending = false
}

// fail переводит машину в безопасную стадию после фатальной ошибки
func (m *Machine) fail(err error) {
	m.releaseStream()
	m.stopJoinTimer()
	m.lastErr = err

	safe := StageIdle
	if len(m.questions) > 0 {
		safe = StageReady
	}
	if safe == StageIdle {
		m.bumpEpoch()
		m.cfg = nil
		m.questions = nil
		m.sessionID = ""
		m.clearCall()
	}
	m.setStage(safe)
	m.emit(ErrorOccurred{Stage: safe, Err: err})
}

func (m *Machine) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:     m.sessionID,
		Stage:         m.stage,
		Questions:     append([]string(nil), m.questions...),
		QuestionIndex: m.pointer,
		Interrupted:   m.interrupted && (m.stage == StageAnalyzing || m.stage == StageFeedback),
		Transcript:    append([]TranscriptEntry(nil), m.transcript...),
		Answers:       make(map[int]AnswerRecord, len(m.answers)),
	}
	if m.cfg != nil {
		cfg := copyConfig(*m.cfg)
		snap.Config = &cfg
	}
	for idx, rec := range m.answers {
		cp := *rec
		if rec.Feedback != nil {
			fb := *rec.Feedback
			cp.Feedback = &fb
		}
		snap.Answers[idx] = cp
	}
	if m.result != nil {
		res := *m.result
		snap.Result = &res
	}
	if m.report != nil {
		rep := *m.report
		snap.Report = &rep
	}
	if m.lastErr != nil {
		snap.LastError = m.lastErr.Error()
	}
	return snap
}

func (m *Machine) record() Record {
	rec := Record{
		SessionID: m.sessionID,
		Stage:     m.stage,
		SavedAt:   m.opts.Now(),
		Questions: append([]string(nil), m.questions...),
	}
	if m.cfg != nil {
		rec.Config = copyConfig(*m.cfg)
	}
	if m.result != nil {
		rec.Result = *m.result
	}
	if m.report != nil {
		rep := *m.report
		rec.Report = &rep
	}
	return rec
}

// save отдает запись во внешний слой хранения, ошибки не влияют на сессию
func (m *Machine) save() {
	saver := m.opts.Saver
	if saver == nil {
		return
	}
	rec := m.record()
	m.saves.Add(1)
	go func() {
		defer m.saves.Done()
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("session save panicked", "session_id", rec.SessionID, "error", panicError(r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.SaveTimeout)
		defer cancel()
		if err := saver.Save(ctx, rec); err != nil {
			m.log.Warn("failed to save session", "session_id", rec.SessionID, "stage", rec.Stage, "error", err)
		}
	}()
}

func copyConfig(cfg Config) Config {
	cfg.TechStack = append([]string(nil), cfg.TechStack...)
	return cfg
}

func intPtr(v int) *int {
	return &v
}
