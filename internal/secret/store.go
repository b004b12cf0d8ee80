package secret

import (
	"fmt"

	"nirsvault/internal/domain"
)

// SecretStore provides a pluggable interface for storing sensitive data
// such as the warehouse password. Implementations: environment variables
// and the macOS Keychain.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// WarehousePassword returns the inline password when set, else the first
// non-empty value the stores hold under the warehouse's secret key.
// An empty result is not an error; sqlite and trust-auth servers need none.
func WarehousePassword(w *domain.Warehouse, stores ...SecretStore) (string, error) {
	if w.Password != "" {
		return w.Password, nil
	}
	key := w.SecretKey()
	for _, s := range stores {
		v, err := s.Get(key)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", key, err)
		}
		if len(v) > 0 {
			return string(v), nil
		}
	}
	return "", nil
}
