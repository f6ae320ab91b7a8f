package applier

import (
	"context"
	"database/sql"
)

// Execer is the minimal database interface the applier needs.
// Typically *sql.DB, but *sql.Tx works for testing.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
