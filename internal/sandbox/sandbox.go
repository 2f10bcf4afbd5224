// FilePath: server/weatherhub/internal/sandbox/sandbox.go
package sandbox

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/config"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/database"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
	"zombiezen.com/go/sqlite"
)

// Sandbox runs validated read queries on a read-only connection pool
// under a wall-clock deadline and a server-side row cap.
type Sandbox struct {
	pool    *database.ReadOnlyPool
	limits  Limits
	timeout time.Duration
	maxRows int
}

// New creates a Sandbox on pool using the sandbox settings.
func New(pool *database.ReadOnlyPool, cfg config.SandboxConfig) *Sandbox {
	return &Sandbox{
		pool:    pool,
		limits:  Limits{MaxChars: cfg.MaxChars, MaxLines: cfg.MaxLines},
		timeout: cfg.Timeout,
		maxRows: cfg.MaxRows,
	}
}

// Run validates and executes text. Every failure is an *errors.APIError
// whose message carries no engine output.
func (s *Sandbox) Run(ctx context.Context, text string) (*models.QueryResult, error) {
	query, err := Validate(text, s.limits)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(err)
		}
		return nil, errors.NewStorageError("query connection unavailable", err)
	}
	defer s.pool.Put(conn)

	stmt, trailing, err := conn.PrepareTransient(query)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer stmt.Finalize()

	if trailing > 0 && strings.TrimSpace(keywordView(query[len(query)-trailing:])) != "" {
		return nil, errors.NewSandboxError(errors.ErrorTypeMultipleStatements, "only a single statement is allowed", nil)
	}

	result := &models.QueryResult{
		Columns: make([]string, stmt.ColumnCount()),
		Rows:    []map[string]any{},
	}
	for i := range result.Columns {
		result.Columns[i] = stmt.ColumnName(i)
	}

	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, classify(ctx, err)
		}
		if !hasRow {
			break
		}
		if len(result.Rows) >= s.maxRows {
			result.Truncated = true
			break
		}
		row := make(map[string]any, len(result.Columns))
		for i, name := range result.Columns {
			row[name] = columnValue(stmt, i)
		}
		result.Rows = append(result.Rows, row)
	}

	result.RowCount = len(result.Rows)
	result.ElapsedMS = time.Since(start).Milliseconds()
	return result, nil
}

// classify maps an engine error to a sandbox error. An interrupt or an
// expired deadline is a timeout; anything else is an execution error.
func classify(ctx context.Context, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || sqlite.ErrCode(err).ToPrimary() == sqlite.ResultInterrupt {
		return timeoutError(err)
	}
	nuts.L.Warnf("[Sandbox] Query rejected by engine: %v", err)
	return errors.NewSandboxError(errors.ErrorTypeExecution, "query could not be executed", err)
}

func timeoutError(err error) error {
	return errors.NewSandboxError(errors.ErrorTypeTimeout, "query exceeded its time budget", err)
}

func columnValue(stmt *sqlite.Stmt, col int) any {
	switch stmt.ColumnType(col) {
	case sqlite.TypeInteger:
		return stmt.ColumnInt64(col)
	case sqlite.TypeFloat:
		return stmt.ColumnFloat(col)
	case sqlite.TypeText:
		return stmt.ColumnText(col)
	case sqlite.TypeBlob:
		buf := make([]byte, stmt.ColumnLen(col))
		stmt.ColumnBytes(col, buf)
		if utf8.Valid(buf) {
			return string(buf)
		}
		return hex.EncodeToString(buf)
	default:
		return nil
	}
}
