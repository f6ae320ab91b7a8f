package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/gridbase/gridbase/internal/cli"
	"github.com/gridbase/gridbase/pkg/applier"
	"github.com/gridbase/gridbase/pkg/compiler"
	"github.com/gridbase/gridbase/pkg/schema"
)

var (
	applyDB         string
	applySchemaPath string
	applyDryRun     bool
	applyForce      bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the compiled schema to the database",
	Long: `Compile the schema document and apply the resulting DDL to PostgreSQL.

The last applied compilation is recorded in the gridbase_migrations
table, so re-running with an unchanged document is a no-op and an
incremental change diffs against the previously applied state.`,
	Example: `  # Apply schema to database
  gridbase apply --db postgres://localhost/mydb

  # Preview migration without applying
  gridbase apply --db postgres://localhost/mydb --dry-run

  # Force re-apply even if schema unchanged
  gridbase apply --db postgres://localhost/mydb --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := cfg.ResolvedSchema(applySchemaPath)
		dryRun := resolveBool(applyDryRun, cfg.Apply.DryRun)
		force := resolveBool(applyForce, cfg.Apply.Force)

		dsn, err := resolveDSN(applyDB)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(schemaPath)
		if err != nil {
			return cli.SchemaParseError(fmt.Sprintf("schema not found: %s", schemaPath), err)
		}
		doc, err := schema.ParseDocument(content)
		if err != nil {
			return cli.SchemaParseError("parsing schema", err)
		}

		return runApply(dsn, doc, string(content), dryRun, force)
	},
}

func init() {
	f := applyCmd.Flags()
	f.StringVar(&applyDB, "db", "", "database URL")
	f.StringVar(&applySchemaPath, "schema", "", "path to schema document")
	f.BoolVar(&applyDryRun, "dry-run", false, "output migration SQL without applying")
	f.BoolVar(&applyForce, "force", false, "force migration even if schema unchanged")
}

// resolveDSN gets the database DSN from flag or config.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("database configuration", err)
	}
	if dsn == "" {
		return "", cli.ConfigError("database URL is required (use --db or set in config)", nil)
	}
	return dsn, nil
}

func runApply(dsn string, doc *schema.Document, content string, dryRun, force bool) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	a := applier.New(db)

	previous, err := a.LoadPreviousSnapshot(ctx)
	if err != nil {
		return cli.DBConnectError("loading previous state", err)
	}

	cs, err := compiler.Compile(doc, previous)
	if err != nil {
		return cli.CompileError("compiling schema", err)
	}

	opts := applier.Options{Force: force}
	if dryRun {
		opts.DryRun = os.Stdout
		if !quiet {
			fmt.Fprintln(os.Stderr, "-- Dry-run mode: SQL will be output but not applied")
			fmt.Fprintln(os.Stderr, "")
		}
	} else if !quiet {
		fmt.Println("Applying schema...")
	}

	skipped, err := a.Apply(ctx, cs, content, opts)
	if err != nil {
		return cli.GeneralError("applying schema", err)
	}

	if dryRun {
		return nil
	}

	if !quiet {
		if skipped {
			fmt.Println("Schema unchanged, apply skipped.")
			fmt.Println("Use --force to re-apply.")
		} else {
			fmt.Printf("Schema applied successfully (%d statements).\n", len(cs.DDL))
		}
	}

	return nil
}
