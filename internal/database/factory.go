package database

import (
	"fmt"
	"os"
	"path/filepath"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

// NewDatabaseFromConfig opens the database selected by cfg.Type.
// The memory type is migrated on open since it starts empty every time.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, "jassist.db"), jassist.RealClock{})
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", jassist.RealClock{})
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating memory database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
