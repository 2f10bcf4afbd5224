// FilePath: server/weatherhub/internal/database/database.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/config"
	"github.com/jmoiron/sqlx"
	nuts "github.com/vaudience/go-nuts"
	_ "modernc.org/sqlite"
)

// DB is the handle every repository is built on.
type DB interface {
	Close() error
	Ping(ctx context.Context) error
	GetDB() *sqlx.DB
	Path() string
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// SQLiteDB is the read/write handle on the station store file.
type SQLiteDB struct {
	db   *sqlx.DB
	path string
}

// NewSQLiteDB opens (creating if needed) the store file in WAL mode.
// Transactions start with BEGIN IMMEDIATE so a writer takes the write
// lock up front instead of upgrading mid-transaction.
func NewSQLiteDB(cfg config.DatabaseConfig) (DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}

	nuts.L.Infof("[SQLiteDB] Opened %s", cfg.Path)
	return &SQLiteDB{db: db, path: cfg.Path}, nil
}

func dsn(cfg config.DatabaseConfig) string {
	busy := cfg.BusyTimeout.Milliseconds()
	if busy <= 0 {
		busy = 5000
	}

	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")

	return "file:" + cfg.Path + "?" + params.Encode()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) GetDB() *sqlx.DB {
	return s.db
}

func (s *SQLiteDB) Path() string {
	return s.path
}
