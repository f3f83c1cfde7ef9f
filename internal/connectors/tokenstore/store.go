// Package tokenstore persists small client-side values, such as the
// dashboard session token, across restarts.
package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"go-recon-dashboard/internal/config"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("tokenstore: key not found")

const (
	dialectSQLite = "sqlite"
	dialectMySQL  = "mysql"
)

// Store is a key/value table on SQLite (single node) or MySQL (shared).
type Store struct {
	db      *sql.DB
	dialect string
}

// Open picks the backend configured by APP_TOKEN_STORE_DRIVER.
func Open(cfg config.Config) (*Store, error) {
	switch cfg.TokenStoreDriver {
	case "", dialectSQLite:
		return NewSQLiteStore(cfg.TokenStorePath)
	case dialectMySQL:
		return NewMySQLStore(cfg.TokenStoreMySQLDSN(), cfg.TokenDBTimeout)
	default:
		return nil, fmt.Errorf("unsupported token store driver %q", cfg.TokenStoreDriver)
	}
}

func NewSQLiteStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return initStore(db, dialectSQLite, 5*time.Second, `
CREATE TABLE IF NOT EXISTS client_storage (
  item_key TEXT PRIMARY KEY,
  item_value TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`)
}

func NewMySQLStore(dsn string, timeout time.Duration) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return initStore(db, dialectMySQL, timeout, `
CREATE TABLE IF NOT EXISTS client_storage (
  item_key VARCHAR(191) NOT NULL PRIMARY KEY,
  item_value TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) DEFAULT CHARSET=utf8mb4;
`)
}

func initStore(db *sql.DB, dialect string, timeout time.Duration, schema string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, dialect: dialect}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.dialect
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT item_value FROM client_storage WHERE item_key = ?;`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	query := `
INSERT INTO client_storage (item_key, item_value, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(item_key) DO UPDATE SET item_value = excluded.item_value, updated_at = CURRENT_TIMESTAMP;
`
	if s.dialect == dialectMySQL {
		query = `
INSERT INTO client_storage (item_key, item_value)
VALUES (?, ?)
ON DUPLICATE KEY UPDATE item_value = VALUES(item_value);
`
	}
	_, err := s.db.ExecContext(ctx, query, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM client_storage WHERE item_key = ?;`, key)
	return err
}
