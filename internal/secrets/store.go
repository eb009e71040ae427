package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/term"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

// PassphraseEnv, when set, supplies the passphrase without prompting.
const PassphraseEnv = "JASSIST_PASSPHRASE"

// Store is a SecretStore that can be initialized.
type Store interface {
	jassist.SecretStore

	// Setup creates the keys protecting the store.
	Setup(passphrase string) error

	// IsConfigured reports whether Setup has run.
	IsConfigured() bool
}

// PassphraseFunc returns the passphrase that unlocks the private key.
type PassphraseFunc func() (string, error)

// StaticPassphrase always returns p.
func StaticPassphrase(p string) PassphraseFunc {
	return func() (string, error) { return p, nil }
}

// PromptPassphrase reads the passphrase from PassphraseEnv, or from the
// terminal without echo. When in is not a terminal a line is read from it.
func PromptPassphrase(in *os.File, out io.Writer, prompt string) PassphraseFunc {
	return func() (string, error) {
		if p := os.Getenv(PassphraseEnv); p != "" {
			return p, nil
		}
		fmt.Fprint(out, prompt)
		defer fmt.Fprintln(out)

		if term.IsTerminal(int(in.Fd())) {
			b, err := term.ReadPassword(int(in.Fd()))
			if err != nil {
				return "", err
			}
			return string(b), nil
		}

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

// MemoryStore keeps secrets in plaintext in memory. Used by tests and the "test" store type.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (m *MemoryStore) Setup(string) error { return nil }
func (m *MemoryStore) IsConfigured() bool { return true }

func (m *MemoryStore) Get(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[name], nil
}

func (m *MemoryStore) Set(name, value string) error {
	if name == "" {
		return errors.New("secret name must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

func (m *MemoryStore) Names() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.values))
	for name := range m.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// NewStoreFromConfig creates a Store based on the configuration type.
func NewStoreFromConfig(cfg config.SecretsConfig, passphrase PassphraseFunc) (Store, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeStore(cfg, passphrase), nil
	case "test":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown secrets type: %q", cfg.Type)
	}
}
