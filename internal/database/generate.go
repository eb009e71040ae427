package database

// Schema and query code are derived from the migrations:
//
//	go generate ./internal/database
//
// The first step dumps the migrated schema to sqlc/schema.sql; the second
// regenerates the sqlc query layer from it and sqlc/queries/*.sql.

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go -out internal/database/sqlc/schema.sql"
//go:generate sh -c "cd ../.. && sqlc generate -f internal/database/sqlc/sqlc.yaml"
