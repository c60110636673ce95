package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// StreamConfig - параметры потока для провайдера распознавания
type StreamConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// ProviderSession - открытое соединение с провайдером распознавания
type ProviderSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan Event
	Wait() error
	Close() error
}

// Provider открывает сессии распознавания
type Provider interface {
	StartStreaming(ctx context.Context, cfg StreamConfig) (ProviderSession, error)
}

const (
	DefaultDeepgramBase  = "https://api.deepgram.com/v1"
	DefaultDeepgramModel = "nova-2"
)

// DeepgramConfig - настройки websocket API Deepgram
type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

// DeepgramProvider реализует Provider поверх live API Deepgram
type DeepgramProvider struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer
}

func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultDeepgramBase
	}
	if cfg.Model == "" {
		cfg.Model = DefaultDeepgramModel
	}
	return &DeepgramProvider{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (p *DeepgramProvider) StartStreaming(ctx context.Context, cfg StreamConfig) (ProviderSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, _, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	session := &deepgramSession{
		conn:     conn,
		events:   make(chan Event, defaultBuffer),
		audio:    make(chan []byte, 32),
		done:     make(chan struct{}),
		closing:  make(chan struct{}),
		readDone: make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

type deepgramSession struct {
	conn *websocket.Conn

	events   chan Event
	audio    chan []byte
	done     chan struct{}
	closing  chan struct{}
	readDone chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *deepgramSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

func (s *deepgramSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *deepgramSession) Events() <-chan Event {
	return s.events
}

func (s *deepgramSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *deepgramSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		// сначала сокет: заблокированный SendAudio освободится через done
		_ = s.conn.Close()
		_ = s.CloseSend()
	})
	<-s.done
	return s.waitErr()
}

func (s *deepgramSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *deepgramSession) setErr(err error) {
	if err == nil {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return
		}
	}
	// соединение закрыто нами через Close
	if errors.Is(err, net.ErrClosed) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *deepgramSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				s.closeStream()
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("failed to send audio: %w", err))
				return
			}
		case <-s.readDone:
			// провайдер закрыл соединение, дальше писать некуда
			return
		}
	}
}

func (s *deepgramSession) closeStream() {
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

func (s *deepgramSession) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	var joiner segmentJoiner
	flush := func() {
		if text, ok := joiner.flush(); ok {
			s.emit(newEvent(KindFinal, text, nil))
		}
	}
	// недоговоренная реплика при закрытии потока тоже ответ
	defer flush()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		switch {
		case strings.EqualFold(response.Type, "Error"):
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		case strings.EqualFold(response.Type, "UtteranceEnd"):
			flush()
			continue
		}

		transcript := extractTranscript(response)
		switch {
		case response.SpeechFinal:
			joiner.add(transcript)
			flush()
		case response.IsFinal:
			joiner.add(transcript)
			if preview := joiner.preview(""); preview != "" {
				s.emit(newEvent(KindInterim, preview, nil))
			}
		case transcript != "":
			s.emit(newEvent(KindInterim, joiner.preview(transcript), nil))
		}
	}
}

// emit не блокирует чтение сокета: промежуточные результаты можно потерять,
// финальные отправляются с ожиданием
func (s *deepgramSession) emit(ev Event) {
	if ev.Kind == KindFinal {
		select {
		case s.events <- ev:
		case <-s.closing:
		}
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

type deepgramAlternative struct {
	Transcript string `json:"transcript"`
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []deepgramAlternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []deepgramAlternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func buildListenURL(providerCfg DeepgramConfig, streamCfg StreamConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = DefaultDeepgramBase
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
