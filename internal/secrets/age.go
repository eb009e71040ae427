// Package secrets keeps API keys and OAuth tokens sealed at rest.
package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/BurntSushi/toml"

	"jassist-go/internal/config"
	"jassist-go/internal/jassist"
)

// AgeStore implements Store with filippo.io/age X25519 keys.
// Each value is sealed to the public key separately, so Set and Names work
// without the passphrase; Get unlocks the private key on first use.
// The private key is itself sealed with the passphrase (scrypt).
type AgeStore struct {
	publicKeyPath  string
	privateKeyPath string
	storePath      string
	passphrase     PassphraseFunc

	mu       sync.Mutex
	identity age.Identity
}

var _ Store = (*AgeStore)(nil)

// NewAgeStore creates an AgeStore from configuration. passphrase is asked for
// the first time a secret is read.
func NewAgeStore(cfg config.SecretsConfig, passphrase PassphraseFunc) *AgeStore {
	return &AgeStore{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
		storePath:      cfg.StorePath,
		passphrase:     passphrase,
	}
}

// Setup generates a new key pair and seals the private key with passphrase.
// Existing sealed values become unreadable, so Setup refuses to run twice.
func (s *AgeStore) Setup(passphrase string) error {
	if s.IsConfigured() {
		return fmt.Errorf("secrets already initialized at %s", filepath.Dir(s.privateKeyPath))
	}
	if passphrase == "" {
		return errors.New("passphrase must not be empty")
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.publicKeyPath), 0700); err != nil {
		return fmt.Errorf("creating public key directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.privateKeyPath), 0700); err != nil {
		return fmt.Errorf("creating private key directory: %w", err)
	}

	if err := os.WriteFile(s.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}

	if err := os.WriteFile(s.privateKeyPath, sealed.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing private key file: %w", err)
	}
	return nil
}

// IsConfigured returns true if both key files exist.
func (s *AgeStore) IsConfigured() bool {
	if _, err := os.Stat(s.publicKeyPath); err != nil {
		return false
	}
	if _, err := os.Stat(s.privateKeyPath); err != nil {
		return false
	}
	return true
}

func (s *AgeStore) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readStore()
	if err != nil {
		return "", err
	}
	sealed, ok := values[name]
	if !ok {
		return "", nil
	}

	identity, err := s.unlock()
	if err != nil {
		return "", err
	}

	r, err := age.Decrypt(armor.NewReader(strings.NewReader(sealed)), identity)
	if err != nil {
		return "", fmt.Errorf("decrypting secret %s: %w", name, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading secret %s: %w", name, err)
	}
	return string(plain), nil
}

func (s *AgeStore) Set(name, value string) error {
	if name == "" {
		return errors.New("secret name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recipient, err := s.loadRecipient()
	if err != nil {
		return fmt.Errorf("loading public key: %w", err)
	}

	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)
	w, err := age.Encrypt(aw, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, value); err != nil {
		return fmt.Errorf("encrypting secret: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("finalizing armor: %w", err)
	}

	values, err := s.readStore()
	if err != nil {
		return err
	}
	values[name] = buf.String()
	return s.writeStore(values)
}

func (s *AgeStore) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readStore()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// storeFile is the on-disk layout: secret name to armored age ciphertext.
type storeFile struct {
	Secrets map[string]string `toml:"secrets"`
}

func (s *AgeStore) readStore() (map[string]string, error) {
	var f storeFile
	if _, err := toml.DecodeFile(s.storePath, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if f.Secrets == nil {
		f.Secrets = map[string]string{}
	}
	return f.Secrets, nil
}

// writeStore replaces the store file atomically.
func (s *AgeStore) writeStore(values map[string]string) error {
	dir := filepath.Dir(s.storePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating secrets directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".secrets-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(storeFile{Secrets: values}); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding secrets file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting secrets file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.storePath); err != nil {
		return fmt.Errorf("replacing secrets file: %w", err)
	}
	return nil
}

// unlock decrypts the private key once per store. Callers hold s.mu.
func (s *AgeStore) unlock() (age.Identity, error) {
	if s.identity != nil {
		return s.identity, nil
	}
	if !s.IsConfigured() {
		return nil, jassist.Configf("secrets are not initialized, run `jassist secrets init`")
	}
	if s.passphrase == nil {
		return nil, jassist.Configf("no passphrase source for sealed secrets")
	}

	passphrase, err := s.passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}

	privData, err := os.ReadFile(s.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(privData), scrypt)
	if err != nil {
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}

	keyData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted private key: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in private key")
	}

	s.identity = identities[0]
	return s.identity, nil
}

func (s *AgeStore) loadRecipient() (age.Recipient, error) {
	pubData, err := os.ReadFile(s.publicKeyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, jassist.Configf("secrets are not initialized, run `jassist secrets init`")
		}
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(pubData))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in public key file")
	}
	return recipients[0], nil
}
