// Command generate_schema migrates an in-memory database and writes its schema
// for sqlc to read.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"jassist-go/internal/database"
	"jassist-go/internal/database/migrations"
)

const header = `-- Generated from internal/database/migrations/files by generate_schema.
-- Do not edit; run 'go generate ./internal/database' instead.

`

// schemaQuery lists user tables first, then their indexes and triggers, skipping
// SQLite internals and the migrate bookkeeping table.
const schemaQuery = `
	SELECT type, name, sql
	FROM sqlite_master
	WHERE sql IS NOT NULL
	  AND name NOT LIKE 'sqlite_%'
	  AND tbl_name != 'schema_migrations'
	ORDER BY
	  CASE type WHEN 'table' THEN 1 WHEN 'index' THEN 2 ELSE 3 END,
	  name`

func main() {
	out := flag.String("out", "internal/database/sqlc/schema.sql", "schema output path")
	flag.Parse()
	log.SetFlags(0)

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.MigrateUp(db); err != nil {
		log.Fatalf("applying migrations: %v", err)
	}

	schema, err := dumpSchema(db)
	if err != nil {
		log.Fatalf("dumping schema: %v", err)
	}

	if err := os.WriteFile(*out, []byte(schema), 0644); err != nil {
		log.Fatalf("writing %s: %v", *out, err)
	}
	fmt.Printf("wrote %s\n", *out)
}

func dumpSchema(db *sql.DB) (string, error) {
	rows, err := db.Query(schemaQuery)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteString(header)
	for rows.Next() {
		var kind, name, stmt string
		if err := rows.Scan(&kind, &name, &stmt); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "-- %s: %s\n%s;\n\n", kind, name, stmt)
	}
	return b.String(), rows.Err()
}
