package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"interview-coach/internal/transcription"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeGenerator struct {
	mu sync.Mutex

	questions []string
	genErr    error
	genBlock  chan struct{}
	genCalls  int
	genDone   chan struct{}

	scores       map[int]float64
	analyzeFails map[int]int
	hang         map[int]bool
	analyzeCalls map[int]int

	report      Report
	reportErr   error
	reportCalls int
}

func newFakeGenerator(questions ...string) *fakeGenerator {
	return &fakeGenerator{
		questions:    questions,
		scores:       make(map[int]float64),
		analyzeFails: make(map[int]int),
		hang:         make(map[int]bool),
		analyzeCalls: make(map[int]int),
		genDone:      make(chan struct{}, 8),
		report:       Report{Summary: "solid session"},
	}
}

func (g *fakeGenerator) GenerateQuestions(ctx context.Context, cfg Config) ([]string, error) {
	g.mu.Lock()
	g.genCalls++
	block := g.genBlock
	questions := append([]string(nil), g.questions...)
	err := g.genErr
	g.mu.Unlock()

	defer func() { g.genDone <- struct{}{} }()

	// ответ приходит даже после отмены контекста, как у медленного сервиса
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (g *fakeGenerator) AnalyzeAnswer(ctx context.Context, req AnalysisRequest) (AnswerFeedback, error) {
	g.mu.Lock()
	g.analyzeCalls[req.QuestionIndex]++
	hang := g.hang[req.QuestionIndex]
	score := g.scores[req.QuestionIndex]
	fail := g.analyzeFails[req.QuestionIndex] > 0
	if fail {
		g.analyzeFails[req.QuestionIndex]--
	}
	g.mu.Unlock()

	if hang {
		<-ctx.Done()
		return AnswerFeedback{}, ctx.Err()
	}
	if fail {
		return AnswerFeedback{}, errors.New("analysis service unavailable")
	}
	return AnswerFeedback{
		QuestionIndex: 99,
		OverallScore:  score,
		Clarity:       score,
		Relevance:     score,
		Confidence:    score,
	}, nil
}

func (g *fakeGenerator) SummarizeSession(ctx context.Context, cfg Config, result Result) (Report, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reportCalls++
	return g.report, g.reportErr
}

func (g *fakeGenerator) analyzeCount(idx int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.analyzeCalls[idx]
}

func (g *fakeGenerator) generateCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.genCalls
}

type fakeStream struct {
	mu        sync.Mutex
	events    chan transcription.Event
	closed    bool
	stopCalls int
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan transcription.Event, 64)}
}

func (s *fakeStream) Events() <-chan transcription.Event {
	return s.events
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *fakeStream) send(kind transcription.Kind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- transcription.Event{Kind: kind, Text: text, At: time.Now()}
}

func (s *fakeStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- transcription.Event{Kind: transcription.KindError, Err: err, At: time.Now()}
}

func (s *fakeStream) stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	starts  int
}

func (f *fakeSource) Start(ctx context.Context) (transcription.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.streams) == 0 {
		return nil, errors.New("no fake streams left")
	}
	stream := f.streams[0]
	f.streams = f.streams[1:]
	return stream, nil
}

type fakeSaver struct {
	mu      sync.Mutex
	records []Record
	saved   chan Record
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{saved: make(chan Record, 8)}
}

func (s *fakeSaver) Save(ctx context.Context, rec Record) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	s.saved <- rec
	return nil
}

func waitEvent[T Event](t *testing.T, events <-chan Event) T {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				var zero T
				t.Fatalf("events channel closed while waiting for %T", zero)
				return zero
			}
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func waitStage(t *testing.T, m *Machine, stage Stage) Snapshot {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := m.Snapshot()
		if snap.Stage == stage {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for stage %s, current %s", stage, snap.Stage)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
