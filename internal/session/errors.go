package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("invalid session config")
	ErrGeneration    = errors.New("question generation failed")
	ErrQuestionCount = errors.New("generated question count does not match config")
	ErrTranscription = errors.New("transcription failed")
	ErrAnalysis      = errors.New("answer analysis failed")
	ErrReport        = errors.New("session report failed")
	ErrClosed        = errors.New("session is closed")
)

// ConfigError описывает конкретное нарушение в конфигурации сессии
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// panicError превращает панику в асинхронном вызове в обычную ошибку
func panicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", recovered)
}

// guard выполняет fn, превращая панику в ошибку
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return fn()
}
