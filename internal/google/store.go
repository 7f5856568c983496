package google

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

// TokenStore persists a single credential record.
type TokenStore interface {
	// Load returns the stored credential, or nil with no error when nothing
	// has been stored yet. A record that cannot be parsed yields an error
	// wrapping ErrCorruptRecord.
	Load() (*Credential, error)

	// Save replaces the stored record with c.
	Save(c *Credential) error
}

// FileTokenStore keeps the credential as a JSON file.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore returns a store backed by the file at path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the token file location.
func (s *FileTokenStore) Path() string { return s.path }

// Load reads the token file.
func (s *FileTokenStore) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", s.path, err)
	}
	c, err := unmarshalCredential(data)
	if err != nil {
		return nil, fmt.Errorf("token file %s: %w", s.path, err)
	}
	return c, nil
}

// Save writes the credential to a temporary file next to the target and
// renames it into place, so an interrupted write never leaves a truncated
// record behind.
func (s *FileTokenStore) Save(c *Credential) error {
	if c == nil {
		return fmt.Errorf("credential cannot be nil")
	}
	data, err := marshalCredential(c)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename has succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set token file permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// KeyringItemKey is the keyring item under which the credential is stored.
const KeyringItemKey = "gmail-token"

// KeyringTokenStore keeps the credential in the operating system keyring.
type KeyringTokenStore struct {
	ring keyring.Keyring
	key  string
}

// NewKeyringTokenStore returns a store backed by ring.
func NewKeyringTokenStore(ring keyring.Keyring) *KeyringTokenStore {
	return &KeyringTokenStore{ring: ring, key: KeyringItemKey}
}

// OpenKeyring opens the platform keyring for serviceName. The encrypted
// file backend under fileDir is used when no native keyring is available.
func OpenKeyring(serviceName, fileDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Load reads the credential item.
func (s *KeyringTokenStore) Load() (*Credential, error) {
	item, err := s.ring.Get(s.key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", s.key, err)
	}
	c, err := unmarshalCredential(item.Data)
	if err != nil {
		return nil, fmt.Errorf("keyring item %q: %w", s.key, err)
	}
	return c, nil
}

// Save overwrites the credential item.
func (s *KeyringTokenStore) Save(c *Credential) error {
	if c == nil {
		return fmt.Errorf("credential cannot be nil")
	}
	data, err := marshalCredential(c)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	err = s.ring.Set(keyring.Item{
		Key:         s.key,
		Data:        data,
		Label:       "gmailcli OAuth token",
		Description: "OAuth token for the Gmail API",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", s.key, err)
	}
	return nil
}
