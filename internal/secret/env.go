package secret

import (
	"os"
	"strings"
)

// EnvStore reads secrets from environment variables. The variable name is
// the prefix followed by the key upper-cased with every non-alphanumeric
// rune replaced by '_'; the bare Fallback variable is consulted last.
type EnvStore struct {
	Prefix   string
	Fallback string
}

// NewEnvStore returns the store used by the CLI: NIRSVAULT_SECRET_<KEY>,
// then NIRSVAULT_WAREHOUSE_PASSWORD.
func NewEnvStore() *EnvStore {
	return &EnvStore{Prefix: "NIRSVAULT_SECRET_", Fallback: "NIRSVAULT_WAREHOUSE_PASSWORD"}
}

// VarName is the environment variable holding key.
func (e *EnvStore) VarName(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	return e.Prefix + name
}

func (e *EnvStore) Set(key string, value []byte) error {
	return os.Setenv(e.VarName(key), string(value))
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	if v, ok := os.LookupEnv(e.VarName(key)); ok {
		return []byte(v), nil
	}
	if e.Fallback != "" {
		if v, ok := os.LookupEnv(e.Fallback); ok {
			return []byte(v), nil
		}
	}
	return nil, nil
}

func (e *EnvStore) Delete(key string) error {
	return os.Unsetenv(e.VarName(key))
}
