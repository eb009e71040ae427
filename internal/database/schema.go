package database

import _ "embed"

// Schema is the full DDL produced by applying every migration, regenerated by tools/generate_schema.go.
//
//go:embed sqlc/schema.sql
var Schema string
