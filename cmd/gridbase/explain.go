package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gridbase/gridbase/internal/cli"
	"github.com/gridbase/gridbase/pkg/compiler"
	"github.com/gridbase/gridbase/pkg/permission"
	"github.com/gridbase/gridbase/pkg/schema"
	"github.com/gridbase/gridbase/pkg/view"
)

var (
	explainSchemaPath string
	explainTable      string
	explainView       string
	explainRoles      []string
	explainAnonymous  bool
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Show what the document compiles to",
	Long: `Compile the schema document and show the physical shape of each table:
columns, constraints, computed-field SQL, and the caller's effective
permissions. With --view, also prints the compiled view query for the
given identity (--role, repeatable, or --anonymous).`,
	Example: `  # Explain every table
  gridbase explain

  # Explain one table as seen by the editor role
  gridbase explain --table orders --role editor

  # Show the compiled default view query for an anonymous caller
  gridbase explain --table orders --view "" --anonymous`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := cfg.ResolvedSchema(explainSchemaPath)

		doc, err := schema.ParseFile(schemaPath)
		if err != nil {
			return cli.SchemaParseError("parsing schema", err)
		}
		cs, err := compiler.Compile(doc, nil)
		if err != nil {
			return cli.CompileError("compiling schema", err)
		}

		ctx := permission.Context{
			Roles:         explainRoles,
			Authenticated: !explainAnonymous,
		}

		tables := doc.Tables
		if explainTable != "" {
			t := doc.Table(explainTable)
			if t == nil {
				return cli.GeneralError(fmt.Sprintf("unknown table %q", explainTable), nil)
			}
			tables = []*schema.TableDef{t}
		}

		for _, t := range tables {
			explainOne(cs, t, ctx)
		}

		if cmd.Flags().Changed("view") {
			if explainTable == "" {
				return cli.GeneralError("--view requires --table", nil)
			}
			q, err := view.Compile(cs, explainTable, explainView, ctx)
			if err != nil {
				return cli.GeneralError("compiling view", err)
			}
			fmt.Println("View query:")
			fmt.Printf("  %s\n", q.SQL)
			if len(q.Args) > 0 {
				fmt.Printf("  args: %v\n", q.Args)
			}
		}

		return nil
	},
}

func explainOne(cs *compiler.CompiledSchema, t *schema.TableDef, ctx permission.Context) {
	ct := cs.Table(t.ID)
	fmt.Printf("table %s\n", t.Name)

	for _, col := range ct.Columns {
		line := "  column " + col.Name + " " + col.SQLType
		if col.Generated != "" {
			line += " GENERATED AS (" + col.Generated + ")"
		}
		if col.NotNull {
			line += " NOT NULL"
		}
		if col.Default != "" {
			line += " DEFAULT " + col.Default
		}
		fmt.Println(line)
	}
	for _, c := range ct.Constraints {
		fmt.Printf("  constraint %s %s\n", c.Name, c.Body)
	}
	for _, j := range ct.Junctions {
		fmt.Printf("  junction %s (%s.%s <-> %s.%s)\n", j.Name, j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn)
	}

	computed := make([]string, 0, len(ct.FieldSQL))
	for name := range ct.FieldSQL {
		computed = append(computed, name)
	}
	sort.Strings(computed)
	for _, name := range computed {
		fmt.Printf("  computed %s = %s\n", name, ct.FieldSQL[name])
	}

	ops := []permission.Operation{permission.OpRead, permission.OpCreate, permission.OpUpdate, permission.OpDelete}
	fmt.Print("  permissions:")
	for _, op := range ops {
		if cs.Permissions().Authorize(t.ID, op, ctx) {
			fmt.Printf(" %s", op)
		}
	}
	fmt.Println()
	fmt.Println()
}

func init() {
	f := explainCmd.Flags()
	f.StringVar(&explainSchemaPath, "schema", "", "path to schema document")
	f.StringVar(&explainTable, "table", "", "limit output to one table (id or name)")
	f.StringVar(&explainView, "view", "", "also print this view's compiled query (empty selects the default view)")
	f.StringSliceVar(&explainRoles, "role", nil, "evaluate permissions with this role (repeatable)")
	f.BoolVar(&explainAnonymous, "anonymous", false, "evaluate permissions without a session")
}
