package compiler

import (
	"sort"
	"strings"

	"github.com/lib/pq"
)

// planDDL produces the ordered statement list migrating from the previous
// compiled state (nil means empty database) to the current one. Creates
// come first, then in-place alterations, then deferred constraint adds so
// foreign keys never reference a table that does not exist yet, and drops
// run last.
func planDDL(cs *CompiledSchema, previous *CompiledSchema) []string {
	var prevTables map[string]*CompiledTable
	if previous != nil {
		prevTables = previous.Tables
	}

	current := make([]*CompiledTable, 0, len(cs.Tables))
	for _, ct := range cs.Tables {
		current = append(current, ct)
	}
	sort.Slice(current, func(i, j int) bool { return current[i].Name < current[j].Name })

	var creates, junctionCreates, alters, constraintAdds, indexAdds, drops []string

	for _, ct := range current {
		prev := prevTables[ct.ID]
		if prev == nil {
			creates = append(creates, renderCreateTable(ct))
			for _, c := range ct.Constraints {
				if strings.HasPrefix(c.Name, "pk_") {
					continue // rendered inline
				}
				constraintAdds = append(constraintAdds, addConstraint(ct.Name, c))
			}
			for _, idx := range ct.Indexes {
				indexAdds = append(indexAdds, createIndex(ct.Name, idx))
			}
			for _, j := range ct.Junctions {
				junctionCreates = append(junctionCreates, renderCreateJunction(j))
			}
			continue
		}
		tableAlters, tableDrops := diffTable(prev, ct)
		alters = append(alters, tableAlters...)
		drops = append(drops, tableDrops...)
	}

	if prevTables != nil {
		removed := make([]*CompiledTable, 0)
		for id, pt := range prevTables {
			if _, ok := cs.Tables[id]; !ok {
				removed = append(removed, pt)
			}
		}
		sort.Slice(removed, func(i, j int) bool { return removed[i].Name < removed[j].Name })
		for _, pt := range removed {
			for _, j := range pt.Junctions {
				drops = append(drops, "DROP TABLE IF EXISTS "+pq.QuoteIdentifier(j.Name)+";")
			}
			drops = append(drops, "DROP TABLE IF EXISTS "+pq.QuoteIdentifier(pt.Name)+";")
		}
	}

	var ddl []string
	ddl = append(ddl, creates...)
	ddl = append(ddl, junctionCreates...)
	ddl = append(ddl, alters...)
	ddl = append(ddl, constraintAdds...)
	ddl = append(ddl, indexAdds...)
	ddl = append(ddl, drops...)
	return ddl
}

// renderCreateTable renders the CREATE TABLE statement: columns with their
// checks as named constraints, and the primary key inline. Foreign keys
// and uniques are added afterwards by ALTER so cross-table references
// never run ahead of their targets.
func renderCreateTable(ct *CompiledTable) string {
	var lines []string
	for _, col := range ct.Columns {
		lines = append(lines, "    "+columnDef(col))
	}
	for _, c := range ct.Constraints {
		if strings.HasPrefix(c.Name, "pk_") {
			lines = append(lines, "    CONSTRAINT "+pq.QuoteIdentifier(c.Name)+" "+c.Body)
		}
	}
	for _, col := range ct.Columns {
		if col.Check != "" {
			lines = append(lines, "    CONSTRAINT "+pq.QuoteIdentifier(checkName(ct.Name, col.Name))+" CHECK ("+col.Check+")")
		}
	}
	return "CREATE TABLE " + pq.QuoteIdentifier(ct.Name) + " (\n" + strings.Join(lines, ",\n") + "\n);"
}

func renderCreateJunction(j JunctionPlan) string {
	lines := []string{
		"    " + pq.QuoteIdentifier(j.LeftColumn) + " BIGINT NOT NULL REFERENCES " +
			pq.QuoteIdentifier(j.LeftTable) + " (\"id\") ON DELETE CASCADE",
		"    " + pq.QuoteIdentifier(j.RightColumn) + " BIGINT NOT NULL REFERENCES " +
			pq.QuoteIdentifier(j.RightTable) + " (\"id\") ON DELETE CASCADE",
		"    CONSTRAINT " + pq.QuoteIdentifier("pk_"+j.Name) + " PRIMARY KEY (" +
			pq.QuoteIdentifier(j.LeftColumn) + ", " + pq.QuoteIdentifier(j.RightColumn) + ")",
	}
	return "CREATE TABLE " + pq.QuoteIdentifier(j.Name) + " (\n" + strings.Join(lines, ",\n") + "\n);"
}

// columnDef renders one column clause of CREATE TABLE / ADD COLUMN.
func columnDef(col ColumnPlan) string {
	def := pq.QuoteIdentifier(col.Name) + " " + col.SQLType
	if col.Generated != "" {
		return def + " GENERATED ALWAYS AS (" + col.Generated + ") STORED"
	}
	if col.NotNull {
		def += " NOT NULL"
	}
	if col.Default != "" {
		def += " DEFAULT " + col.Default
	}
	return def
}

func addConstraint(table string, c ConstraintPlan) string {
	return "ALTER TABLE " + pq.QuoteIdentifier(table) +
		" ADD CONSTRAINT " + pq.QuoteIdentifier(c.Name) + " " + c.Body + ";"
}

func dropConstraint(table, name string) string {
	return "ALTER TABLE " + pq.QuoteIdentifier(table) +
		" DROP CONSTRAINT IF EXISTS " + pq.QuoteIdentifier(name) + ";"
}

func createIndex(table string, idx IndexPlan) string {
	return "CREATE INDEX " + pq.QuoteIdentifier(idx.Name) + " ON " +
		pq.QuoteIdentifier(table) + " (" + pq.QuoteIdentifier(idx.Column) + ");"
}

func checkName(table, column string) string {
	return "chk_" + table + "_" + column
}
