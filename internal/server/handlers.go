package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"interview-coach/internal/session"
	"interview-coach/internal/storage"
	"interview-coach/internal/transcription"
)

const maxBodyBytes = 1 << 20

type createSessionResponse struct {
	ID       string           `json:"id"`
	Snapshot session.Snapshot `json:"snapshot"`
}

type sessionSummary struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"session_id,omitempty"`
	Stage       session.Stage `json:"stage"`
	Subscribers int           `json:"subscribers"`
}

type answerRequest struct {
	Text          string `json:"text"`
	QuestionIndex *int   `json:"question_index"`
}

type resumeRequest struct {
	QuestionIndex *int `json:"question_index"`
}

type transcriptRequest struct {
	Kind transcription.Kind `json:"kind"`
	Text string             `json:"text"`
}

// handleCreateSession создает сессию и сразу запускает генерацию вопросов
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var cfg session.Config
	if err := decodeBody(w, r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.applyDefaults(&cfg)

	sess := s.newSession()
	if err := sess.machine.StartGeneration(cfg); err != nil {
		sess.close()
		s.writeErr(w, err)
		return
	}
	s.register(sess)
	s.log.Info("session created", "id", sess.id, "role", cfg.Role, "questions", cfg.QuestionCount)

	writeJSON(w, http.StatusCreated, createSessionResponse{ID: sess.id, Snapshot: sess.machine.Snapshot()})
}

// handleGenerate запускает генерацию в уже созданной сессии после reset
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var cfg session.Config
	if err := decodeBody(w, r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.applyDefaults(&cfg)
	if err := sess.machine.StartGeneration(cfg); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.machine.Snapshot())
}

func (s *Server) applyDefaults(cfg *session.Config) {
	if cfg.QuestionCount == 0 && s.opts.DefaultQuestionCount > 0 {
		cfg.QuestionCount = s.opts.DefaultQuestionCount
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.sessionsMutex.RLock()
	live := make([]*liveSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.sessionsMutex.RUnlock()

	list := make([]sessionSummary, 0, len(live))
	for _, sess := range live {
		snap := sess.machine.Snapshot()
		list = append(list, sessionSummary{
			ID:          sess.id,
			SessionID:   snap.SessionID,
			Stage:       snap.Stage,
			Subscribers: sess.hub.count(),
		})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.machine.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.remove(mux.Vars(r)["id"])
	if err != nil {
		s.writeErr(w, err)
		return
	}
	sess.close()
	s.log.Info("session closed", "id", sess.id)
	w.WriteHeader(http.StatusNoContent)
}

// command оборачивает команду машины без аргументов
func (s *Server) command(fn func(*session.Machine) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.session(w, r)
		if !ok {
			return
		}
		if err := fn(sess.machine); err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, sess.machine.Snapshot())
	}
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.QuestionIndex == nil {
		writeError(w, http.StatusBadRequest, "question_index is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err := sess.machine.SubmitAnswer(req.Text, *req.QuestionIndex); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.machine.Snapshot())
}

// handleResumeCall продолжает оборвавшийся звонок; без индекса - с текущего вопроса
func (s *Server) handleResumeCall(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req resumeRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	idx := sess.machine.Snapshot().QuestionIndex
	if req.QuestionIndex != nil {
		idx = *req.QuestionIndex
	}
	if err := sess.machine.ResumeCall(idx); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.machine.Snapshot())
}

func (s *Server) handleRetryAnalysis(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question index")
		return
	}
	if err := sess.machine.RetryAnalysis(idx); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.machine.Snapshot())
}

// handleTranscript принимает результаты распознавания, которое идет на стороне клиента
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req transcriptRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	if req.Kind == transcription.KindError {
		msg := strings.TrimSpace(req.Text)
		if msg == "" {
			msg = "client transcription error"
		}
		err = sess.push.Fail(errors.New(msg))
	} else {
		err = sess.push.Push(req.Kind, req.Text)
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "id", sess.id, "error", err)
		return
	}

	subID, send := sess.hub.subscribe()
	s.log.Debug("websocket subscriber connected", "id", sess.id, "subscriber_id", subID)

	c := &wsConnection{conn: conn, send: send, log: s.log, closed: make(chan struct{})}
	go func() {
		c.readPump()
		sess.hub.unsubscribe(subID)
		s.log.Debug("websocket subscriber disconnected", "id", sess.id, "subscriber_id", subID)
	}()
	go c.writePump()
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusNotFound, "storage is disabled")
		return
	}
	list, err := s.opts.Store.List(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusNotFound, "storage is disabled")
		return
	}
	rec, err := s.opts.Store.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Metrics.GetSnapshot())
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	sess, err := s.lookup(mux.Vars(r)["id"])
	if err != nil {
		s.writeErr(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidConfig),
		errors.Is(err, storage.ErrInvalidID),
		errors.Is(err, transcription.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, transcription.ErrNoActiveStream):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
