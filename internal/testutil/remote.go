package testutil

import (
	"jassist-go/internal/remote"
)

// NewTestRemote creates a new in-memory drive for testing.
func NewTestRemote() *remote.MemoryRemote {
	return remote.NewMemoryRemote()
}
