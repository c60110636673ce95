package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"interview-coach/internal/metrics"
	"interview-coach/internal/session"
	"interview-coach/internal/storage"
	"interview-coach/internal/transcription"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeGenerator struct {
	mu        sync.Mutex
	questions []string
	analyzed  []int
}

func (g *fakeGenerator) GenerateQuestions(ctx context.Context, cfg session.Config) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.questions[:cfg.QuestionCount]...), nil
}

func (g *fakeGenerator) AnalyzeAnswer(ctx context.Context, req session.AnalysisRequest) (session.AnswerFeedback, error) {
	g.mu.Lock()
	g.analyzed = append(g.analyzed, req.QuestionIndex)
	g.mu.Unlock()
	return session.AnswerFeedback{QuestionIndex: req.QuestionIndex, OverallScore: 8, Clarity: 8, Relevance: 8, Confidence: 8}, nil
}

func (g *fakeGenerator) SummarizeSession(ctx context.Context, cfg session.Config, result session.Result) (session.Report, error) {
	return session.Report{Summary: "Уверенное интервью"}, nil
}

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	store   storage.Store
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.NewJSONStore(t.TempDir())
	m := metrics.NewMetrics()
	srv := New(Options{
		Generator: &fakeGenerator{questions: []string{"Q1", "Q2", "Q3", "Q4", "Q5"}},
		Session: session.Options{
			Limits:      session.Limits{MinQuestions: 1, MaxQuestions: 5},
			JoinTimeout: time.Second,
		},
		Store:                store,
		Metrics:              m,
		Logger:               discardLogger,
		DefaultQuestionCount: 2,
		RateLimit:            1000,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.CloseAll)
	return &testEnv{srv: srv, ts: ts, store: store, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func (e *testEnv) create(t *testing.T, cfg session.Config) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/sessions", cfg)
	if status != http.StatusCreated {
		t.Fatalf("create session: status %d, body %s", status, body)
	}
	var resp createSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	return resp.ID
}

func (e *testEnv) snapshot(t *testing.T, id string) session.Snapshot {
	t.Helper()
	status, body := e.do(t, http.MethodGet, "/sessions/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("get session: status %d, body %s", status, body)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatal(err)
	}
	return snap
}

func (e *testEnv) waitStage(t *testing.T, id string, stage session.Stage) session.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := e.snapshot(t, id)
		if snap.Stage == stage {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for stage %s, last %s", stage, snap.Stage)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (e *testEnv) dial(t *testing.T, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/sessions/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type receivedEvent struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func waitWire(t *testing.T, conn *websocket.Conn, eventType string) receivedEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev receivedEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		if ev.Type == eventType {
			return ev
		}
	}
}

func TestInterviewOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, session.Config{Role: "Go Developer", ExperienceLevel: "senior"})
	env.waitStage(t, id, session.StageReady)

	conn := env.dial(t, id)
	// подписка регистрируется асинхронно после upgrade
	deadline := time.Now().Add(time.Second)
	for env.srv.sessions[id].hub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/call/start", nil); status != http.StatusAccepted {
		t.Fatalf("call start: %d %s", status, body)
	}
	waitWire(t, conn, "call_started")

	for _, text := range []string{"Первый ответ", "Второй ответ"} {
		if status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/transcript", transcriptRequest{Kind: transcription.KindFinal, Text: text}); status != http.StatusAccepted {
			t.Fatalf("transcript: %d %s", status, body)
		}
		waitWire(t, conn, "analysis_completed")
	}

	if status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/call/end", nil); status != http.StatusAccepted {
		t.Fatalf("call end: %d %s", status, body)
	}
	ev := waitWire(t, conn, "feedback_ready")
	var ready session.FeedbackReady
	if err := json.Unmarshal(ev.Data, &ready); err != nil {
		t.Fatal(err)
	}
	if score, ok := ready.Result.Aggregate.Score(); !ok || score != 8 {
		t.Fatalf("unexpected aggregate: %+v", ready.Result.Aggregate)
	}

	if status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/report", nil); status != http.StatusAccepted {
		t.Fatalf("report: %d %s", status, body)
	}
	waitWire(t, conn, "report_ready")
	snap := env.waitStage(t, id, session.StageDone)

	// сохранение асинхронное
	deadline = time.Now().Add(2 * time.Second)
	for {
		rec, err := env.store.Load(context.Background(), snap.SessionID)
		if err == nil && rec.Stage == session.StageDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session was not saved: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	status, body := env.do(t, http.MethodGet, "/results/"+snap.SessionID, nil)
	if status != http.StatusOK {
		t.Fatalf("get result: %d %s", status, body)
	}
	status, body = env.do(t, http.MethodGet, "/results", nil)
	if status != http.StatusOK || !strings.Contains(string(body), snap.SessionID) {
		t.Fatalf("list results: %d %s", status, body)
	}

	status, body = env.do(t, http.MethodGet, "/metrics", nil)
	var counters metrics.Snapshot
	if err := json.Unmarshal(body, &counters); err != nil || status != http.StatusOK {
		t.Fatalf("metrics: %d %s", status, body)
	}
	if counters.SessionsStarted != 1 || counters.AnswersAnalyzed != 2 {
		t.Fatalf("unexpected counters: %+v", counters)
	}
}

func TestSubmitAnswerEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, session.Config{Role: "Go Developer", ExperienceLevel: "junior", QuestionCount: 1})
	env.waitStage(t, id, session.StageReady)
	env.do(t, http.MethodPost, "/sessions/"+id+"/call/start", nil)
	env.waitStage(t, id, session.StageCalling)

	status, _ := env.do(t, http.MethodPost, "/sessions/"+id+"/answers", map[string]any{"text": "ответ"})
	if status != http.StatusBadRequest {
		t.Fatalf("missing index: expected 400, got %d", status)
	}

	status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/answers", map[string]any{"text": "ответ", "question_index": 0})
	if status != http.StatusAccepted {
		t.Fatalf("submit: %d %s", status, body)
	}
	env.do(t, http.MethodPost, "/sessions/"+id+"/call/end", nil)
	snap := env.waitStage(t, id, session.StageFeedback)
	if snap.Result == nil || len(snap.Result.PerQuestion) != 1 {
		t.Fatalf("unexpected result: %+v", snap.Result)
	}
}

func TestRequestErrors(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, session.Config{Role: "SRE", ExperienceLevel: "middle"})
	env.waitStage(t, id, session.StageReady)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "unknown session", method: http.MethodGet, path: "/sessions/missing", want: http.StatusNotFound},
		{name: "invalid config", method: http.MethodPost, path: "/sessions", body: session.Config{Role: "", ExperienceLevel: "x"}, want: http.StatusBadRequest},
		{name: "too many questions", method: http.MethodPost, path: "/sessions", body: session.Config{Role: "SRE", ExperienceLevel: "x", QuestionCount: 50}, want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/sessions", body: map[string]any{"role": "SRE", "salary": 1}, want: http.StatusBadRequest},
		{name: "transcript without call", method: http.MethodPost, path: "/sessions/" + id + "/transcript", body: transcriptRequest{Kind: transcription.KindFinal, Text: "x"}, want: http.StatusConflict},
		{name: "unknown transcript kind", method: http.MethodPost, path: "/sessions/" + id + "/transcript", body: transcriptRequest{Kind: "started"}, want: http.StatusBadRequest},
		{name: "missing result", method: http.MethodGet, path: "/results/" + id, want: http.StatusNotFound},
		{name: "invalid result id", method: http.MethodGet, path: "/results/not-a-uuid", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, tt.body)
			if status != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, status, body)
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, session.Config{Role: "QA", ExperienceLevel: "junior"})

	if status, _ := env.do(t, http.MethodDelete, "/sessions/"+id, nil); status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/sessions/"+id, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}

func TestResetAndGenerateAgain(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, session.Config{Role: "QA", ExperienceLevel: "junior"})
	env.waitStage(t, id, session.StageReady)

	env.do(t, http.MethodPost, "/sessions/"+id+"/reset", nil)
	env.waitStage(t, id, session.StageIdle)

	status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/generate", session.Config{Role: "QA", ExperienceLevel: "senior", QuestionCount: 3})
	if status != http.StatusAccepted {
		t.Fatalf("generate: %d %s", status, body)
	}
	snap := env.waitStage(t, id, session.StageReady)
	if len(snap.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %v", snap.Questions)
	}
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, session.Config{Role: "QA", ExperienceLevel: "junior"})
	env.create(t, session.Config{Role: "SRE", ExperienceLevel: "senior"})

	status, body := env.do(t, http.MethodGet, "/sessions", nil)
	var list []sessionSummary
	if err := json.Unmarshal(body, &list); err != nil || status != http.StatusOK {
		t.Fatalf("list: %d %s", status, body)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %+v", list)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	srv := New(Options{Generator: &fakeGenerator{}, Logger: discardLogger, RateLimit: 2, RateWindow: time.Minute})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/sessions")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}

	// метрики не ограничиваются
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics limited: %d", resp.StatusCode)
	}
}

func TestCleanupInactiveSessions(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, session.Config{Role: "QA", ExperienceLevel: "junior"})
	fresh := env.create(t, session.Config{Role: "SRE", ExperienceLevel: "junior"})

	env.srv.sessions[id].touch(time.Now().Add(-48 * time.Hour))
	if n := env.srv.cleanupInactiveSessions(); n != 1 {
		t.Fatalf("expected one session closed, got %d", n)
	}
	if status, _ := env.do(t, http.MethodGet, "/sessions/"+id, nil); status != http.StatusNotFound {
		t.Fatalf("idle session still registered: %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/sessions/"+fresh, nil); status != http.StatusOK {
		t.Fatalf("fresh session removed: %d", status)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrSessionNotFound, http.StatusNotFound},
		{storage.ErrNotFound, http.StatusNotFound},
		{&session.ConfigError{Field: "role", Reason: "is required"}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", storage.ErrInvalidID), http.StatusBadRequest},
		{transcription.ErrNoActiveStream, http.StatusConflict},
		{session.ErrClosed, http.StatusGone},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestResumeInterruptedCall(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, session.Config{Role: "Go Developer", ExperienceLevel: "middle"})
	env.waitStage(t, id, session.StageReady)
	env.do(t, http.MethodPost, "/sessions/"+id+"/call/start", nil)
	env.waitStage(t, id, session.StageCalling)
	waitPushStream(t, env, id)

	env.do(t, http.MethodPost, "/sessions/"+id+"/transcript", transcriptRequest{Kind: transcription.KindFinal, Text: "Первый ответ"})
	env.do(t, http.MethodPost, "/sessions/"+id+"/transcript", transcriptRequest{Kind: transcription.KindError, Text: "network lost"})
	interrupted := env.waitStage(t, id, session.StageFeedback)
	if interrupted.QuestionIndex != 1 || len(interrupted.Answers) != 1 {
		t.Fatalf("unexpected interrupted state: pointer %d, answers %d", interrupted.QuestionIndex, len(interrupted.Answers))
	}

	status, body := env.do(t, http.MethodPost, "/sessions/"+id+"/call/resume", nil)
	if status != http.StatusAccepted {
		t.Fatalf("resume: %d %s", status, body)
	}
	resumed := env.waitStage(t, id, session.StageCalling)
	if resumed.Answers[0].Answer != "Первый ответ" {
		t.Fatalf("expected first answer to be kept, got %+v", resumed.Answers)
	}

	waitPushStream(t, env, id)
	env.do(t, http.MethodPost, "/sessions/"+id+"/transcript", transcriptRequest{Kind: transcription.KindFinal, Text: "Второй ответ"})
	deadline := time.Now().Add(2 * time.Second)
	for len(env.snapshot(t, id).Answers) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("second answer was not recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.do(t, http.MethodPost, "/sessions/"+id+"/call/end", nil)
	snap := env.waitStage(t, id, session.StageFeedback)
	if snap.Result == nil || len(snap.Result.PerQuestion) != 2 {
		t.Fatalf("expected both answers in the result, got %+v", snap.Result)
	}

	status, _ = env.do(t, http.MethodPost, "/sessions/"+id+"/call/resume", map[string]any{"question_index": "one"})
	if status != http.StatusBadRequest {
		t.Fatalf("invalid body: expected 400, got %d", status)
	}
}

// waitPushStream ждет, пока машина откроет поток распознавания
func waitPushStream(t *testing.T, env *testEnv, id string) {
	t.Helper()
	env.srv.sessionsMutex.RLock()
	sess := env.srv.sessions[id]
	env.srv.sessionsMutex.RUnlock()

	deadline := time.Now().Add(2 * time.Second)
	for !sess.push.Active() {
		if time.Now().After(deadline) {
			t.Fatalf("transcription stream was not opened")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no origin header", origin: "", want: true},
		{name: "same host", origin: "http://coach.local:8080", want: true},
		{name: "foreign host", origin: "https://evil.example", want: false},
		{name: "listed origin", allowed: []string{"https://app.example/"}, origin: "https://app.example", want: true},
		{name: "listed host other scheme", allowed: []string{"https://app.example"}, origin: "http://app.example", want: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://evil.example", want: true},
		{name: "garbage origin", origin: "::", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://coach.local:8080/sessions/x/events", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := checkOrigin(tt.allowed)(r); got != tt.want {
				t.Fatalf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestEventsRejectForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, session.Config{Role: "Go Developer", ExperienceLevel: "senior"})

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/sessions/" + id + "/events"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		_ = conn.Close()
		t.Fatalf("expected foreign origin to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}
