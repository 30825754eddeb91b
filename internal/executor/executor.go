// Package executor runs fixed, parameterized read queries against Postgres.
package executor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/triage-ai/icio-mcp/internal/apperr"
	"go.uber.org/zap"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// Executor runs one statement per call on a connection it acquires from the
// pool and releases before returning.
type Executor struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates an Executor over the given pool.
func New(db *sql.DB, logger *zap.Logger) *Executor {
	return &Executor{db: db, logger: logger}
}

// Query executes a fixed statement with positional arguments and returns all
// rows. Failures are wrapped as query execution errors and never retried.
func (e *Executor) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, apperr.QueryExecution(fmt.Errorf("acquire connection: %w", err))
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			e.logger.Warn("release connection failed", zap.Error(cerr))
		}
	}()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.QueryExecution(err)
	}
	defer func() { _ = rows.Close() }()

	out, err := collect(rows)
	if err != nil {
		return nil, apperr.QueryExecution(err)
	}
	return out, nil
}

// Ping runs a trivial statement through the same scoped-connection path.
func (e *Executor) Ping(ctx context.Context) error {
	_, err := e.Query(ctx, "select 1")
	return err
}

func collect(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeValue copies driver-owned byte slices into strings.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
