package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultKeychainService groups nirsvault entries in the login keychain.
const DefaultKeychainService = "nirsvault-warehouse"

// security(1) exits with 44 when no item matches.
const errSecItemNotFound = 44

// KeychainStore keeps secrets in the macOS Keychain through the security
// CLI, one generic password per key under Service.
type KeychainStore struct {
	Service string
}

// NewKeychainStore returns a store under DefaultKeychainService.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{Service: DefaultKeychainService}
}

func (k *KeychainStore) security(op, key string, extra ...string) *exec.Cmd {
	args := append([]string{op, "-a", key, "-s", k.Service}, extra...)
	return exec.Command("security", args...)
}

// Set stores value under key, replacing any previous value.
func (k *KeychainStore) Set(key string, value []byte) error {
	out, err := k.security("add-generic-password", key, "-w", string(value), "-U").CombinedOutput()
	if err != nil {
		return fmt.Errorf("keychain set %s: %s: %w", key, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Get returns nil without error when the key has no entry.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := k.security("find-generic-password", key, "-w").Output()
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keychain get %s: %w", key, err)
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

// Delete is a no-op for keys without an entry.
func (k *KeychainStore) Delete(key string) error {
	out, err := k.security("delete-generic-password", key).CombinedOutput()
	if err != nil && !notFound(err) {
		return fmt.Errorf("keychain delete %s: %s: %w", key, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func notFound(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == errSecItemNotFound
}
