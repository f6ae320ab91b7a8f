// Package main provides a CLI for managing gridbase schema documents.
//
// The CLI supports:
//   - validate: Check a schema document for structural and type errors
//   - plan: Compile the document and print the DDL migration plan
//   - apply: Apply the compiled DDL to PostgreSQL
//   - explain: Show compiled columns, computed SQL, views, and permissions
//
// This tool is typically run during development and deployment to keep
// the database synchronized with the declarative schema document.
//
// Commands that require database access (apply) need a configured
// database URL. Commands that only work with files (validate, plan,
// explain) do not.
package main

func main() {
	Execute()
}
