package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"jassist-go/internal/config"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Set("b", "2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set("a", "1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, _ := s.Get("a"); got != "1" {
		t.Errorf("Get(a) = %q, want 1", got)
	}
	if got, _ := s.Get("missing"); got != "" {
		t.Errorf("Get(missing) = %q, want empty", got)
	}
	names, _ := s.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", names)
	}
	if err := s.Set("", "x"); err == nil {
		t.Error("Set(\"\") error = nil, want error")
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		typ     string
		wantErr bool
	}{
		{"", false},
		{"age", false},
		{"test", false},
		{"vault", true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			_, err := NewStoreFromConfig(config.SecretsConfig{Type: tt.typ}, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewStoreFromConfig(%q) error = %v, wantErr %v", tt.typ, err, tt.wantErr)
			}
		})
	}
}

func TestPromptPassphrase(t *testing.T) {
	t.Run("env wins", func(t *testing.T) {
		t.Setenv(PassphraseEnv, "from-env")
		got, err := PromptPassphrase(os.Stdin, os.Stderr, "Passphrase: ")()
		if err != nil || got != "from-env" {
			t.Errorf("PromptPassphrase() = %q, %v", got, err)
		}
	})

	t.Run("reads line from non-terminal", func(t *testing.T) {
		t.Setenv(PassphraseEnv, "")
		path := filepath.Join(t.TempDir(), "in")
		if err := os.WriteFile(path, []byte("piped secret\n"), 0600); err != nil {
			t.Fatal(err)
		}
		in, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer in.Close()

		out, _ := os.Create(filepath.Join(t.TempDir(), "out"))
		defer out.Close()

		got, err := PromptPassphrase(in, out, "Passphrase: ")()
		if err != nil || got != "piped secret" {
			t.Errorf("PromptPassphrase() = %q, %v", got, err)
		}
	})
}
