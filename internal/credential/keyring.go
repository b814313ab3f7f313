// Package credential resolves secrets from the OS keyring when they are not
// supplied through configuration or the environment.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

// Store reads and writes secrets by key.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// KeyringStore is a Store backed by the platform keyring.
type KeyringStore struct {
	cfg keyring.Config
}

// NewKeyringStore returns a store scoped to service. fileDir is used by the
// encrypted-file fallback backend on hosts without a keyring daemon.
func NewKeyringStore(service, fileDir string) *KeyringStore {
	return &KeyringStore{cfg: keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	}}
}

func (s *KeyringStore) open() (keyring.Keyring, error) {
	ring, err := keyring.Open(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func (s *KeyringStore) Get(key string) (string, error) {
	ring, err := s.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func (s *KeyringStore) Set(key, value string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Resolve returns current when it is non-empty, otherwise the value stored
// under key. A missing keyring entry is not an error.
func Resolve(store Store, key, current string) (string, error) {
	if current != "" || store == nil {
		return current, nil
	}
	value, err := store.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}
