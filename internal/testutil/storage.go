package testutil

import (
	"testing"

	"jassist-go/internal/jassist"
	"jassist-go/internal/storage"
)

// NewTestStorage creates a DiskStorage for userID under a temporary directory.
func NewTestStorage(t *testing.T, userID string, clock jassist.Clock) *storage.DiskStorage {
	t.Helper()

	s, err := storage.NewDiskStorage(t.TempDir(), userID, storage.Options{}, clock)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return s
}
