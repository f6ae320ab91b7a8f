package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridbase/gridbase/internal/cli"
	"github.com/gridbase/gridbase/pkg/compiler"
	"github.com/gridbase/gridbase/pkg/schema"
)

var (
	planSchemaPath   string
	planPrevious     string
	planOutput       string
	planSaveSnapshot string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compile the document and print the DDL plan",
	Long: `Compile the schema document and print the DDL statements that would
bring the database to the declared state. With --previous pointing at a
snapshot from an earlier plan, the output is an incremental migration;
without it, the plan creates everything from scratch.`,
	Example: `  # Plan from scratch
  gridbase plan --schema schema.yaml

  # Plan an incremental migration against the last snapshot
  gridbase plan --previous .gridbase/snapshot.json

  # Save the compiled snapshot for the next incremental plan
  gridbase plan --save-snapshot .gridbase/snapshot.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := cfg.ResolvedSchema(planSchemaPath)
		previousPath := resolveString(planPrevious, cfg.Plan.Previous, cfg.Snapshot)
		outputPath := resolveString(planOutput, cfg.Plan.Output)

		doc, err := schema.ParseFile(schemaPath)
		if err != nil {
			return cli.SchemaParseError("parsing schema", err)
		}

		var previous *compiler.CompiledSchema
		if previousPath != "" {
			data, err := os.ReadFile(previousPath)
			if err != nil {
				return cli.GeneralError("reading previous snapshot", err)
			}
			previous, err = compiler.LoadSnapshot(data)
			if err != nil {
				return cli.GeneralError("loading previous snapshot", err)
			}
		}

		cs, err := compiler.Compile(doc, previous)
		if err != nil {
			return cli.CompileError("compiling schema", err)
		}

		out := os.Stdout
		if outputPath != "" {
			f, err := os.Create(outputPath)
			if err != nil {
				return cli.GeneralError("creating output file", err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}

		if len(cs.DDL) == 0 {
			if !quiet {
				fmt.Fprintln(os.Stderr, "No changes; database already matches the document.")
			}
		}
		for _, stmt := range cs.DDL {
			fmt.Fprintf(out, "%s\n\n", stmt)
		}

		if planSaveSnapshot != "" {
			snapshot, err := cs.Snapshot()
			if err != nil {
				return cli.GeneralError("serializing snapshot", err)
			}
			if err := os.WriteFile(planSaveSnapshot, snapshot, 0o644); err != nil {
				return cli.GeneralError("writing snapshot", err)
			}
			if !quiet {
				fmt.Fprintf(os.Stderr, "Snapshot written to %s\n", planSaveSnapshot)
			}
		}

		return nil
	},
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planSchemaPath, "schema", "", "path to schema document")
	f.StringVar(&planPrevious, "previous", "", "path to a previous compiled snapshot")
	f.StringVar(&planOutput, "output", "", "write the plan to a file instead of stdout")
	f.StringVar(&planSaveSnapshot, "save-snapshot", "", "write the compiled snapshot to this path")
}
