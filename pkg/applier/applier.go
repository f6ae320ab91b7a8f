// Package applier applies compiled schema DDL to a PostgreSQL database.
//
// The applier is idempotent and safe to run on every deployment: it
// records each applied compilation in a tracking table keyed by the
// document checksum and skips re-application when nothing changed. The
// tracking row also stores the compiled schema snapshot, so the next
// compilation can diff against the last applied state without a separate
// snapshot file.
package applier

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/lib/pq"

	"github.com/gridbase/gridbase/pkg/compiler"
)

// CompilerVersion is incremented when DDL generation changes shape, so an
// unchanged document still re-applies after a compiler upgrade.
const CompilerVersion = "1"

const trackingDDL = `
CREATE TABLE IF NOT EXISTS gridbase_migrations (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    schema_checksum TEXT NOT NULL,
    compiler_version TEXT NOT NULL,
    statements TEXT[] NOT NULL,
    snapshot JSONB NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Options controls apply behavior.
type Options struct {
	// DryRun writes the SQL to the writer instead of executing it.
	DryRun io.Writer

	// Force applies even when the checksum matches the last record.
	Force bool
}

// Record is one row of the tracking table.
type Record struct {
	SchemaChecksum  string
	CompilerVersion string
	Statements      []string
}

// Checksum returns the SHA-256 hex digest of the document content, the
// key for skip-if-unchanged detection.
func Checksum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// Applier applies compiled schemas to one database.
type Applier struct {
	db Execer
}

// New creates an applier over the given database handle.
func New(db Execer) *Applier {
	return &Applier{db: db}
}

// LastRecord returns the most recent tracking row, or nil when the
// tracking table does not exist or is empty.
func (a *Applier) LastRecord(ctx context.Context) (*Record, error) {
	exists, err := a.trackingTableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}
	var rec Record
	err = a.db.QueryRowContext(ctx, `
		SELECT schema_checksum, compiler_version, statements
		FROM gridbase_migrations
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&rec.SchemaChecksum, &rec.CompilerVersion, pq.Array(&rec.Statements))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last migration: %w", err)
	}
	return &rec, nil
}

// LoadPreviousSnapshot returns the compiled schema stored with the last
// applied migration, or nil when nothing has been applied yet.
func (a *Applier) LoadPreviousSnapshot(ctx context.Context) (*compiler.CompiledSchema, error) {
	exists, err := a.trackingTableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}
	var snapshot []byte
	err = a.db.QueryRowContext(ctx, `
		SELECT snapshot
		FROM gridbase_migrations
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last snapshot: %w", err)
	}
	return compiler.LoadSnapshot(snapshot)
}

func (a *Applier) trackingTableExists(ctx context.Context) (bool, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = 'gridbase_migrations'
			AND n.nspname = current_schema()
		)
	`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking gridbase_migrations table: %w", err)
	}
	return exists, nil
}

// Apply executes the compiled schema's DDL. documentContent is the raw
// schema text; its checksum drives skip-if-unchanged. Returns skipped=true
// when the checksum and compiler version match the last applied record.
//
// Statements run inside a transaction when the handle supports BeginTx, so
// a failed migration leaves the database at the previous state.
func (a *Applier) Apply(ctx context.Context, cs *compiler.CompiledSchema, documentContent string, opts Options) (skipped bool, err error) {
	checksum := Checksum(documentContent)

	if !opts.Force && opts.DryRun == nil {
		last, err := a.LastRecord(ctx)
		if err != nil {
			return false, fmt.Errorf("checking last migration: %w", err)
		}
		if last != nil && last.SchemaChecksum == checksum && last.CompilerVersion == CompilerVersion {
			return true, nil
		}
	}

	if opts.DryRun != nil {
		a.writeDryRun(opts.DryRun, checksum, cs)
		return false, nil
	}

	snapshot, err := cs.Snapshot()
	if err != nil {
		return false, fmt.Errorf("serializing snapshot: %w", err)
	}

	if txer, ok := a.db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		tx, err := txer.BeginTx(ctx, nil)
		if err != nil {
			return false, fmt.Errorf("starting transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := a.applyAll(ctx, tx, cs, checksum, snapshot); err != nil {
			return false, err
		}
		return false, tx.Commit()
	}

	return false, a.applyAll(ctx, a.db, cs, checksum, snapshot)
}

func (a *Applier) applyAll(ctx context.Context, db Execer, cs *compiler.CompiledSchema, checksum string, snapshot []byte) error {
	if _, err := db.ExecContext(ctx, trackingDDL); err != nil {
		return fmt.Errorf("applying tracking DDL: %w", err)
	}
	for i, stmt := range cs.DDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying statement %d: %w", i, err)
		}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO gridbase_migrations (schema_checksum, compiler_version, statements, snapshot)
		VALUES ($1, $2, $3, $4)
	`, checksum, CompilerVersion, pq.Array(cs.DDL), snapshot)
	if err != nil {
		return fmt.Errorf("inserting migration record: %w", err)
	}
	return nil
}

// writeDryRun writes the migration SQL without touching the database.
func (a *Applier) writeDryRun(w io.Writer, checksum string, cs *compiler.CompiledSchema) {
	_, _ = fmt.Fprintf(w, "-- Gridbase Migration (dry-run)\n")
	_, _ = fmt.Fprintf(w, "-- Schema checksum: %s\n", checksum)
	_, _ = fmt.Fprintf(w, "-- Compiler version: %s\n\n", CompilerVersion)

	_, _ = fmt.Fprintf(w, "-- ============================================================\n")
	_, _ = fmt.Fprintf(w, "-- DDL: Migration Tracking Table\n")
	_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
	_, _ = fmt.Fprintf(w, "%s;\n\n", trackingDDL)

	_, _ = fmt.Fprintf(w, "-- ============================================================\n")
	_, _ = fmt.Fprintf(w, "-- Schema Statements (%d statements)\n", len(cs.DDL))
	_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
	for _, stmt := range cs.DDL {
		_, _ = fmt.Fprintf(w, "%s\n\n", stmt)
	}
}
