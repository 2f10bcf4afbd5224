// FilePath: server/weatherhub/internal/database/readonly.go
package database

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	nuts "github.com/vaudience/go-nuts"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ReadOnlyConfig describes a read-only pool on an existing store file.
type ReadOnlyConfig struct {
	// Path is the store file written by SQLiteDB. It must already exist.
	Path string

	// PoolSize bounds the number of concurrent read-only connections.
	// Defaults to 2.
	PoolSize int
}

// ReadOnlyPool is a pool of connections opened with SQLITE_OPEN_READONLY
// and query_only enforced. It never shares a handle with the writer, so
// a long-running read cannot hold up ingestion and the writer lock
// cannot block a read.
//
// Connections are not safe for concurrent use; Take one per goroutine
// and Put it back when done.
type ReadOnlyPool struct {
	inner *sqlitex.Pool
	path  string
}

// OpenReadOnly creates the pool. Connections are opened lazily on the
// first Take.
func OpenReadOnly(cfg ReadOnlyConfig) (*ReadOnlyPool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("readonly pool: Path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}

	inner, err := sqlitex.NewPool(readOnlyURI(cfg.Path), sqlitex.PoolOptions{
		Flags:       sqlite.OpenReadOnly | sqlite.OpenURI,
		PoolSize:    poolSize,
		PrepareConn: prepareReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("readonly pool: opening %s: %w", cfg.Path, err)
	}

	nuts.L.Infof("[ReadOnlyPool] Opened %s (pool_size=%d)", cfg.Path, poolSize)
	return &ReadOnlyPool{inner: inner, path: cfg.Path}, nil
}

func readOnlyURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}
	return u.String()
}

// prepareReadOnly runs once per connection. query_only makes the engine
// refuse any write even if a statement slips past text-level checks.
func prepareReadOnly(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA query_only=ON",
		"PRAGMA busy_timeout=1000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("readonly pool: %s: %w", pragma, err)
		}
	}
	return nil
}

// Take borrows a connection. The connection's interrupt is bound to
// ctx: when ctx is done the engine aborts the running statement at its
// next checkpoint with SQLITE_INTERRUPT.
func (p *ReadOnlyPool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("readonly pool: take: %w", err)
	}
	conn.SetInterrupt(ctx.Done())
	return conn, nil
}

// Put returns a connection to the pool and clears its interrupt.
func (p *ReadOnlyPool) Put(conn *sqlite.Conn) {
	if conn == nil {
		return
	}
	conn.SetInterrupt(nil)
	p.inner.Put(conn)
}

// Close closes all connections, blocking until borrowed ones are returned.
func (p *ReadOnlyPool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("readonly pool: closing %s: %w", p.path, err)
	}
	nuts.L.Infof("[ReadOnlyPool] Closed %s", p.path)
	return nil
}
