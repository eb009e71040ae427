package testutil

import (
	"jassist-go/internal/secrets"
)

// NewTestSecrets creates an in-memory secret store holding the given values.
func NewTestSecrets(values map[string]string) *secrets.MemoryStore {
	s := secrets.NewMemoryStore()
	for k, v := range values {
		s.Set(k, v)
	}
	return s
}
