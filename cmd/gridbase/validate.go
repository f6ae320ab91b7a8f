package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridbase/gridbase/internal/cli"
	"github.com/gridbase/gridbase/pkg/schema"
)

var validateSchemaPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a schema document",
	Long:  `Validate a schema document: structure, field configuration, references, views, and permissions.`,
	Example: `  # Validate a specific document
  gridbase validate --schema schema.yaml

  # Validate using config file settings
  gridbase validate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := cfg.ResolvedSchema(validateSchemaPath)

		if _, err := os.Stat(schemaPath); err != nil {
			return cli.SchemaParseError(fmt.Sprintf("schema not found: %s", schemaPath), nil)
		}

		doc, err := schema.ParseFile(schemaPath)
		if err != nil {
			return cli.SchemaParseError("parsing schema", err)
		}
		if err := schema.Validate(doc); err != nil {
			return cli.SchemaParseError("validating schema", err)
		}

		if !quiet {
			fmt.Printf("Schema is valid. Found %d tables:\n", len(doc.Tables))
			for _, t := range doc.Tables {
				fmt.Printf("  - %s (%d fields, %d views)\n", t.Name, len(t.Fields), len(t.Views))
			}
		}

		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateSchemaPath, "schema", "", "path to schema document")
}
