package compiler

import (
	"github.com/lib/pq"
)

// diffTable computes the ALTER statements migrating one existing table
// from its previous compiled shape to the current one. Columns are matched
// by field id, so a field that changed only its name becomes a rename and
// keeps its data. Destructive statements (column and junction drops) come
// back separately so the planner can order them after everything else.
func diffTable(prev, cur *CompiledTable) (alters, drops []string) {
	table := cur.Name
	if prev.Name != cur.Name {
		alters = append(alters, "ALTER TABLE "+pq.QuoteIdentifier(prev.Name)+
			" RENAME TO "+pq.QuoteIdentifier(cur.Name)+";")
	}

	prevCols := make(map[string]*ColumnPlan, len(prev.Columns))
	for i := range prev.Columns {
		prevCols[prev.Columns[i].FieldID] = &prev.Columns[i]
	}
	curCols := make(map[string]bool, len(cur.Columns))

	// Renames run first so later statements address columns by their
	// current names.
	for i := range cur.Columns {
		col := &cur.Columns[i]
		curCols[col.FieldID] = true
		old, ok := prevCols[col.FieldID]
		if ok && old.Name != col.Name {
			alters = append(alters, "ALTER TABLE "+pq.QuoteIdentifier(table)+
				" RENAME COLUMN "+pq.QuoteIdentifier(old.Name)+" TO "+pq.QuoteIdentifier(col.Name)+";")
		}
	}

	for i := range cur.Columns {
		col := &cur.Columns[i]
		old, ok := prevCols[col.FieldID]
		if !ok {
			alters = append(alters, "ALTER TABLE "+pq.QuoteIdentifier(table)+
				" ADD COLUMN "+columnDef(*col)+";")
			continue
		}
		alters = append(alters, diffColumn(table, old, col)...)
	}

	for i := range prev.Columns {
		old := &prev.Columns[i]
		if !curCols[old.FieldID] {
			drops = append(drops, "ALTER TABLE "+pq.QuoteIdentifier(table)+
				" DROP COLUMN IF EXISTS "+pq.QuoteIdentifier(old.Name)+";")
		}
	}

	alters = append(alters, diffConstraints(prev, cur, table)...)
	alters = append(alters, diffIndexes(prev, cur, table)...)

	jAlters, jDrops := diffJunctions(prev, cur)
	alters = append(alters, jAlters...)
	drops = append(drops, jDrops...)
	return alters, drops
}

// diffColumn alters one surviving column in place. A change to a generated
// expression (or into/out of generated) cannot be altered in PostgreSQL
// and becomes a drop-and-recreate.
func diffColumn(table string, old, col *ColumnPlan) []string {
	var stmts []string
	qt, qc := pq.QuoteIdentifier(table), pq.QuoteIdentifier(col.Name)

	if old.Generated != col.Generated {
		stmts = append(stmts,
			"ALTER TABLE "+qt+" DROP COLUMN IF EXISTS "+qc+";",
			"ALTER TABLE "+qt+" ADD COLUMN "+columnDef(*col)+";")
		return stmts
	}
	if old.SQLType != col.SQLType {
		stmts = append(stmts, "ALTER TABLE "+qt+" ALTER COLUMN "+qc+
			" TYPE "+col.SQLType+" USING "+qc+"::"+col.SQLType+";")
	}
	if old.NotNull != col.NotNull {
		if col.NotNull {
			stmts = append(stmts, "ALTER TABLE "+qt+" ALTER COLUMN "+qc+" SET NOT NULL;")
		} else {
			stmts = append(stmts, "ALTER TABLE "+qt+" ALTER COLUMN "+qc+" DROP NOT NULL;")
		}
	}
	if old.Default != col.Default {
		if col.Default != "" {
			stmts = append(stmts, "ALTER TABLE "+qt+" ALTER COLUMN "+qc+" SET DEFAULT "+col.Default+";")
		} else {
			stmts = append(stmts, "ALTER TABLE "+qt+" ALTER COLUMN "+qc+" DROP DEFAULT;")
		}
	}
	if old.Check != col.Check {
		stmts = append(stmts, dropConstraint(table, checkName(table, old.Name)))
		if col.Check != "" {
			stmts = append(stmts, "ALTER TABLE "+qt+" ADD CONSTRAINT "+
				pq.QuoteIdentifier(checkName(table, col.Name))+" CHECK ("+col.Check+");")
		}
	}
	return stmts
}

func diffConstraints(prev, cur *CompiledTable, table string) []string {
	var stmts []string
	prevByName := make(map[string]string, len(prev.Constraints))
	for _, c := range prev.Constraints {
		prevByName[c.Name] = c.Body
	}
	curByName := make(map[string]string, len(cur.Constraints))
	for _, c := range cur.Constraints {
		curByName[c.Name] = c.Body
	}

	for _, c := range prev.Constraints {
		if body, ok := curByName[c.Name]; !ok || body != c.Body {
			stmts = append(stmts, dropConstraint(table, c.Name))
		}
	}
	for _, c := range cur.Constraints {
		if body, ok := prevByName[c.Name]; !ok || body != c.Body {
			stmts = append(stmts, addConstraint(table, c))
		}
	}
	return stmts
}

func diffIndexes(prev, cur *CompiledTable, table string) []string {
	var stmts []string
	prevByName := make(map[string]string, len(prev.Indexes))
	for _, idx := range prev.Indexes {
		prevByName[idx.Name] = idx.Column
	}
	curByName := make(map[string]string, len(cur.Indexes))
	for _, idx := range cur.Indexes {
		curByName[idx.Name] = idx.Column
	}

	for _, idx := range prev.Indexes {
		if col, ok := curByName[idx.Name]; !ok || col != idx.Column {
			stmts = append(stmts, "DROP INDEX IF EXISTS "+pq.QuoteIdentifier(idx.Name)+";")
		}
	}
	for _, idx := range cur.Indexes {
		if col, ok := prevByName[idx.Name]; !ok || col != idx.Column {
			stmts = append(stmts, createIndex(table, idx))
		}
	}
	return stmts
}

func diffJunctions(prev, cur *CompiledTable) (creates, drops []string) {
	prevByName := make(map[string]bool, len(prev.Junctions))
	for _, j := range prev.Junctions {
		prevByName[j.Name] = true
	}
	curByName := make(map[string]bool, len(cur.Junctions))
	for _, j := range cur.Junctions {
		curByName[j.Name] = true
		if !prevByName[j.Name] {
			creates = append(creates, renderCreateJunction(j))
		}
	}
	for _, j := range prev.Junctions {
		if !curByName[j.Name] {
			drops = append(drops, "DROP TABLE IF EXISTS "+pq.QuoteIdentifier(j.Name)+";")
		}
	}
	return creates, drops
}
