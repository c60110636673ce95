package transcription

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	ErrNoActiveStream = errors.New("no active transcription stream")
	ErrUnknownKind    = errors.New("unknown transcription event kind")
)

// PushSource получает события распознавания извне, например от браузера,
// который распознает речь сам и присылает текст через HTTP API.
type PushSource struct {
	mu      sync.Mutex
	current *pushStream
	buffer  int
}

func NewPushSource(buffer int) *PushSource {
	return &PushSource{buffer: buffer}
}

// Start открывает новый поток. Предыдущий поток, если он еще открыт, закрывается.
func (s *PushSource) Start(ctx context.Context) (Stream, error) {
	stream := &pushStream{pipe: newPipe(s.buffer), owner: s}

	s.mu.Lock()
	prev := s.current
	s.current = stream
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Stop()
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Stop()
		case <-stream.done():
		}
	}()

	stream.send(newEvent(KindStarted, "", nil))
	return stream, nil
}

// Push доставляет событие в активный поток
func (s *PushSource) Push(kind Kind, text string) error {
	switch kind {
	case KindInterim, KindFinal, KindEnded:
	default:
		return ErrUnknownKind
	}

	s.mu.Lock()
	stream := s.current
	s.mu.Unlock()
	if stream == nil {
		return ErrNoActiveStream
	}

	if !stream.send(newEvent(kind, strings.TrimSpace(text), nil)) {
		return ErrNoActiveStream
	}
	return nil
}

// Fail сообщает об ошибке распознавания на стороне клиента
func (s *PushSource) Fail(err error) error {
	s.mu.Lock()
	stream := s.current
	s.mu.Unlock()
	if stream == nil {
		return ErrNoActiveStream
	}
	if !stream.send(newEvent(KindError, "", err)) {
		return ErrNoActiveStream
	}
	return nil
}

// Active сообщает, есть ли открытый поток
func (s *PushSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *PushSource) release(stream *pushStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == stream {
		s.current = nil
	}
}

type pushStream struct {
	*pipe
	owner *PushSource
}

func (s *pushStream) Stop() error {
	s.shutdown()
	s.owner.release(s)
	return nil
}
