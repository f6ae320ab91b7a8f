package applier_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/applier"
	"github.com/gridbase/gridbase/pkg/compiler"
	"github.com/gridbase/gridbase/pkg/schema"
)

// fakeExecer records executed statements without a database. Apply falls
// back to non-transactional execution because the fake has no BeginTx.
type fakeExecer struct {
	statements []string
	args       [][]interface{}
	failOn     string
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return nil, errors.New("syntax error")
	}
	f.statements = append(f.statements, query)
	f.args = append(f.args, args)
	return nil, nil
}

func (f *fakeExecer) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeExecer) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func compileDoc(t *testing.T) *compiler.CompiledSchema {
	t.Helper()
	cs, err := compiler.Compile(&schema.Document{
		Tables: []*schema.TableDef{{
			ID:   "t1",
			Name: "notes",
			Fields: []*schema.FieldDef{
				{ID: "f1", Name: "body", Kind: schema.KindLongText},
				{ID: "f2", Name: "pinned", Kind: schema.KindCheckbox},
			},
		}},
	}, nil)
	require.NoError(t, err)
	return cs
}

func TestChecksum(t *testing.T) {
	a := applier.Checksum("tables:\n  - name: notes\n")
	assert.Len(t, a, 64)
	assert.Equal(t, a, applier.Checksum("tables:\n  - name: notes\n"))
	assert.NotEqual(t, a, applier.Checksum("tables:\n  - name: tasks\n"))
}

func TestApply_ExecutesStatementsInOrder(t *testing.T) {
	cs := compileDoc(t)
	db := &fakeExecer{}
	a := applier.New(db)

	skipped, err := a.Apply(context.Background(), cs, "doc-content", applier.Options{Force: true})
	require.NoError(t, err)
	assert.False(t, skipped)

	require.Len(t, db.statements, len(cs.DDL)+2)
	assert.Contains(t, db.statements[0], "CREATE TABLE IF NOT EXISTS gridbase_migrations")
	for i, stmt := range cs.DDL {
		assert.Equal(t, stmt, db.statements[i+1])
	}

	last := len(db.statements) - 1
	assert.Contains(t, db.statements[last], "INSERT INTO gridbase_migrations")
	require.Len(t, db.args[last], 4)
	assert.Equal(t, applier.Checksum("doc-content"), db.args[last][0])
	assert.Equal(t, applier.CompilerVersion, db.args[last][1])
}

func TestApply_StatementFailureStopsBeforeRecord(t *testing.T) {
	cs := compileDoc(t)
	db := &fakeExecer{failOn: "CREATE TABLE \"notes\""}
	a := applier.New(db)

	_, err := a.Apply(context.Background(), cs, "doc-content", applier.Options{Force: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "applying statement 0")
	for _, stmt := range db.statements {
		assert.NotContains(t, stmt, "INSERT INTO gridbase_migrations")
	}
}

func TestApply_DryRunWritesWithoutExecuting(t *testing.T) {
	cs := compileDoc(t)
	db := &fakeExecer{}
	a := applier.New(db)

	var buf bytes.Buffer
	skipped, err := a.Apply(context.Background(), cs, "doc-content", applier.Options{DryRun: &buf})
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Empty(t, db.statements)

	out := buf.String()
	assert.Contains(t, out, "-- Gridbase Migration (dry-run)")
	assert.Contains(t, out, "-- Schema checksum: "+applier.Checksum("doc-content"))
	assert.Contains(t, out, "-- DDL: Migration Tracking Table")
	for _, stmt := range cs.DDL {
		assert.Contains(t, out, stmt)
	}
}
