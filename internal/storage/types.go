package storage

import (
	"context"
	"errors"
	"time"

	"interview-coach/internal/session"
)

var (
	ErrNotFound  = errors.New("session result not found")
	ErrInvalidID = errors.New("invalid session id")
)

// Summary - краткая строка списка сохраненных сессий
type Summary struct {
	SessionID    string        `json:"session_id"`
	Role         string        `json:"role"`
	Level        string        `json:"experience_level"`
	Stage        session.Stage `json:"stage"`
	SavedAt      time.Time     `json:"saved_at"`
	OverallScore float64       `json:"overall_score"`
	Scored       bool          `json:"scored"`
	Questions    int           `json:"questions"`
	HasReport    bool          `json:"has_report"`
}

// Store - хранилище итогов сессий
type Store interface {
	Save(ctx context.Context, rec session.Record) error
	Load(ctx context.Context, id string) (session.Record, error)
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

func summarize(rec session.Record) Summary {
	score, scored := rec.Result.Aggregate.Score()
	return Summary{
		SessionID:    rec.SessionID,
		Role:         rec.Config.Role,
		Level:        rec.Config.ExperienceLevel,
		Stage:        rec.Stage,
		SavedAt:      rec.SavedAt,
		OverallScore: score,
		Scored:       scored,
		Questions:    len(rec.Questions),
		HasReport:    rec.Report != nil,
	}
}
