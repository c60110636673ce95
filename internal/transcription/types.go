// Package transcription оборачивает потоковое распознавание речи.
package transcription

import (
	"context"
	"time"
)

// Kind определяет тип события распознавания
type Kind string

const (
	KindStarted Kind = "started"
	KindInterim Kind = "interim"
	KindFinal   Kind = "final"
	KindEnded   Kind = "ended"
	KindError   Kind = "error"
)

// Event - одно событие из потока распознавания
type Event struct {
	Kind Kind      `json:"kind"`
	Text string    `json:"text,omitempty"`
	Err  error     `json:"-"`
	At   time.Time `json:"at"`
}

// Stream - активный поток распознавания. Держит микрофон до вызова Stop.
type Stream interface {
	Events() <-chan Event
	// Stop идемпотентен и освобождает все ресурсы
	Stop() error
}

// Source запускает потоки распознавания
type Source interface {
	Start(ctx context.Context) (Stream, error)
}

func newEvent(kind Kind, text string, err error) Event {
	return Event{Kind: kind, Text: text, Err: err, At: time.Now()}
}
