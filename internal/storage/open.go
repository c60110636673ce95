package storage

import (
	"fmt"
	"strings"
)

// Драйверы хранилища
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open выбирает хранилище по имени драйвера. Для json path - каталог, для sqlite - файл базы.
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverJSON:
		return NewJSONStore(path), nil
	case DriverSQLite, "sqlite3":
		if path == "" {
			path = "interviews.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

var (
	_ Store = (*JSONStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
