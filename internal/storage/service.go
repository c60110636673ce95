package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"interview-coach/internal/session"
)

const (
	DefaultResultsDir = "results"
	filePrefix        = "interview_"
	fileSuffix        = ".json"
)

// JSONStore хранит каждую сессию в отдельном файле interview_<id>.json
type JSONStore struct {
	dir string
}

func NewJSONStore(dir string) *JSONStore {
	if dir == "" {
		dir = DefaultResultsDir
	}
	return &JSONStore{dir: dir}
}

// Save сохраняет результат интервью в JSON файл
func (s *JSONStore) Save(ctx context.Context, rec session.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(rec.SessionID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("ошибка создания директории %s: %w", s.dir, err)
	}

	jsonData, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации результата: %w", err)
	}

	// запись через временный файл, чтобы читатель не увидел половину JSON
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0o644); err != nil {
		return fmt.Errorf("ошибка записи файла %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("ошибка записи файла %s: %w", path, err)
	}
	return nil
}

// Load загружает результат интервью из JSON файла
func (s *JSONStore) Load(ctx context.Context, id string) (session.Record, error) {
	if err := ctx.Err(); err != nil {
		return session.Record{}, err
	}
	path, err := s.path(id)
	if err != nil {
		return session.Record{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return session.Record{}, ErrNotFound
	}
	if err != nil {
		return session.Record{}, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}

	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return session.Record{}, fmt.Errorf("ошибка десериализации JSON: %w", err)
	}
	return rec, nil
}

// List возвращает все сохраненные сессии, новые первыми
func (s *JSONStore) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", s.dir, err)
	}

	summaries := []Summary{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		rec, err := s.Load(ctx, id)
		if errors.Is(err, ErrInvalidID) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summarize(rec))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].SavedAt.After(summaries[j].SavedAt)
	})
	return summaries, nil
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) path(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, filePrefix+id+fileSuffix), nil
}
