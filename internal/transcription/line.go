package transcription

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// LineSource превращает каждую непустую строку из r в финальный транскрипт.
// Конец ввода завершает поток событием ended. Источник одноразовый.
type LineSource struct {
	r      io.Reader
	buffer int
}

func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r, buffer: defaultBuffer}
}

func (s *LineSource) Start(ctx context.Context) (Stream, error) {
	if s.r == nil {
		return nil, fmt.Errorf("line source has no input")
	}

	stream := &lineStream{pipe: newPipe(s.buffer)}
	r := s.r
	s.r = nil

	go func() {
		select {
		case <-ctx.Done():
			stream.shutdown()
		case <-stream.done():
		}
	}()

	go stream.read(r)
	return stream, nil
}

type lineStream struct {
	*pipe
}

func (s *lineStream) read(r io.Reader) {
	if !s.send(newEvent(KindStarted, "", nil)) {
		return
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !s.send(newEvent(KindFinal, line, nil)) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.send(newEvent(KindError, "", fmt.Errorf("failed to read transcript lines: %w", err)))
		return
	}
	s.send(newEvent(KindEnded, "", nil))
}

func (s *lineStream) Stop() error {
	s.shutdown()
	return nil
}
