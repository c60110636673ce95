package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"interview-coach/internal/session"
)

// SQLiteStore хранит сессии в таблице sessions, запись обновляется по id
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore открывает базу по dbPath и создает таблицы, если их нет
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite допускает одного писателя
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		experience_level TEXT NOT NULL,
		stage TEXT NOT NULL,
		overall_score REAL,
		question_count INTEGER NOT NULL DEFAULT 0,
		has_report INTEGER NOT NULL DEFAULT 0,
		saved_at DATETIME NOT NULL,
		record TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_saved_at ON sessions(saved_at);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, rec session.Record) error {
	if _, err := uuid.Parse(rec.SessionID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, rec.SessionID)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	var score sql.NullFloat64
	if v, ok := rec.Result.Aggregate.Score(); ok {
		score = sql.NullFloat64{Float64: v, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, role, experience_level, stage, overall_score, question_count, has_report, saved_at, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   stage = excluded.stage,
		   overall_score = excluded.overall_score,
		   question_count = excluded.question_count,
		   has_report = excluded.has_report,
		   saved_at = excluded.saved_at,
		   record = excluded.record`,
		rec.SessionID, rec.Config.Role, rec.Config.ExperienceLevel, string(rec.Stage), score,
		len(rec.Questions), rec.Report != nil, rec.SavedAt.UTC(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (session.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT record FROM sessions WHERE id = ?`, id)

	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Record{}, ErrNotFound
	}
	if err != nil {
		return session.Record{}, fmt.Errorf("scan session: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return session.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, experience_level, stage, overall_score, question_count, has_report, saved_at
		 FROM sessions
		 ORDER BY saved_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []Summary{}
	for rows.Next() {
		var (
			sum   Summary
			stage string
			score sql.NullFloat64
		)
		if err := rows.Scan(&sum.SessionID, &sum.Role, &sum.Level, &stage, &score, &sum.Questions, &sum.HasReport, &sum.SavedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.Stage = session.Stage(stage)
		sum.OverallScore = score.Float64
		sum.Scored = score.Valid
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return summaries, nil
}
