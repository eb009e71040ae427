package testutil

import (
	"testing"

	"jassist-go/internal/database"
	"jassist-go/internal/jassist"
)

// NewTestDatabase creates a new in-memory SQLite database with schema applied,
// stamping rows with FixedClock. The database is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()
	return NewTestDatabaseWithClock(t, FixedClock())
}

// NewTestDatabaseWithClock is NewTestDatabase with a caller-supplied clock.
func NewTestDatabaseWithClock(t *testing.T, clock jassist.Clock) *database.SQLiteDatabase {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	db := database.NewSQLiteDatabaseFromDB(sqlDB, clock)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
