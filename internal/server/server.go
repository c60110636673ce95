// Package server - HTTP и WebSocket транспорт для интерфейса тренировочных интервью.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"interview-coach/internal/metrics"
	"interview-coach/internal/ratelimit"
	"interview-coach/internal/session"
	"interview-coach/internal/storage"
	"interview-coach/internal/transcription"
)

var ErrSessionNotFound = errors.New("session not found")

// Значения по умолчанию
const (
	DefaultRateLimit       = 60
	DefaultRateWindow      = time.Minute
	DefaultCleanupInterval = time.Hour
	DefaultIdleTimeout     = 24 * time.Hour
)

// Options настраивает сервер
type Options struct {
	Generator session.Generator
	// Session - шаблон опций машины; Saver, Metrics и Logger подставляются сервером
	Session session.Options
	Store   storage.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	DefaultQuestionCount int
	RateLimit            int
	RateWindow           time.Duration
	CleanupInterval      time.Duration
	IdleTimeout          time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// AllowedOrigins - origin'ы, с которых можно подписаться на события.
	// Пустой список разрешает только тот же хост, "*" - любой.
	AllowedOrigins []string
}

// liveSession - одна сессия интервью с ее источником речи и подписчиками
type liveSession struct {
	id      string
	machine *session.Machine
	push    *transcription.PushSource
	hub     *hub

	mu           sync.Mutex
	lastActivity time.Time
}

func (s *liveSession) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *liveSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *liveSession) close() {
	_ = s.machine.Close()
	<-s.hub.done
}

type Server struct {
	opts        Options
	log         *slog.Logger
	router      *mux.Router
	rateLimiter *ratelimit.RateLimiter
	upgrader    websocket.Upgrader
	now         func() time.Time

	sessions      map[string]*liveSession
	sessionsMutex sync.RWMutex
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = DefaultRateWindow
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		opts:        opts,
		log:         opts.Logger.With("component", "server"),
		rateLimiter: ratelimit.NewRateLimiter(opts.RateLimit, opts.RateWindow),
		upgrader:    newUpgrader(opts.AllowedOrigins),
		now:         time.Now,
		sessions:    make(map[string]*liveSession),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	api := router.NewRoute().Subrouter()
	api.Use(rateLimit(s.rateLimiter))

	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/call/start", s.command((*session.Machine).StartCall)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/call/end", s.command((*session.Machine).EndCall)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/call/resume", s.handleResumeCall).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/retry", s.command((*session.Machine).RetrySameQuestions)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/report", s.command((*session.Machine).RequestDetailedReport)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/reset", s.command((*session.Machine).Reset)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/answers", s.handleSubmitAnswer).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/analysis/{index:[0-9]+}/retry", s.handleRetryAnalysis).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/transcript", s.handleTranscript).Methods(http.MethodPost)
	api.HandleFunc("/results", s.handleListResults).Methods(http.MethodGet)
	api.HandleFunc("/results/{id}", s.handleGetResult).Methods(http.MethodGet)

	// websocket и метрики не считаются в лимите
	router.HandleFunc("/sessions/{id}/events", s.handleEvents).Methods(http.MethodGet)
	router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	return router
}

// Handler возвращает роутер сервера
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run слушает addr до отмены ctx, затем закрывает все сессии
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	go s.cleanupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.CloseAll()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.CloseAll()
	return err
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupInactiveSessions()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) cleanupInactiveSessions() int {
	cutoff := s.now().Add(-s.opts.IdleTimeout)

	s.sessionsMutex.Lock()
	var stale []*liveSession
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) && sess.hub.count() == 0 {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.sessionsMutex.Unlock()

	for _, sess := range stale {
		sess.close()
		s.log.Info("closed idle session", "id", sess.id)
	}
	return len(stale)
}

// CloseAll закрывает все живые сессии
func (s *Server) CloseAll() {
	s.sessionsMutex.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*liveSession)
	s.sessionsMutex.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

func (s *Server) newSession() *liveSession {
	opts := s.opts.Session
	opts.Metrics = s.opts.Metrics
	opts.Logger = s.opts.Logger
	if s.opts.Store != nil {
		opts.Saver = s.opts.Store
	}

	push := transcription.NewPushSource(0)
	machine := session.New(s.opts.Generator, push, opts)
	sess := &liveSession{
		id:           uuid.NewString(),
		machine:      machine,
		push:         push,
		hub:          newHub(s.log.With("component", "hub")),
		lastActivity: s.now(),
	}
	go sess.hub.run(machine.Events())
	return sess
}

func (s *Server) register(sess *liveSession) {
	s.sessionsMutex.Lock()
	s.sessions[sess.id] = sess
	s.sessionsMutex.Unlock()
}

func (s *Server) lookup(id string) (*liveSession, error) {
	s.sessionsMutex.RLock()
	sess, ok := s.sessions[id]
	s.sessionsMutex.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(s.now())
	return sess, nil
}

func (s *Server) remove(id string) (*liveSession, error) {
	s.sessionsMutex.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.sessionsMutex.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}
