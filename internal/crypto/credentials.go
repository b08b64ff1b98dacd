package crypto

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// CredentialStore persists credentials as encrypted files under the
// data directory. Values are encrypted with a key derived from a
// machine identifier, so a copied data directory does not leak tokens
// on another machine.
type CredentialStore struct {
	dir string
}

// NewCredentialStore creates a store rooted at dataDir.
func NewCredentialStore(dataDir string) *CredentialStore {
	return &CredentialStore{dir: filepath.Join(dataDir, "secure")}
}

// Store encrypts and writes a credential under the given name.
func (s *CredentialStore) Store(name, value string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create secure directory: %w", err)
	}

	encrypted, err := EncryptString(value, string(GetMachineKey(machineIdentifier())))
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	if err := os.WriteFile(s.path(name), []byte(encrypted), 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}

// Get reads and decrypts a credential. A missing credential is an
// error; callers that treat it as optional should check with Has.
func (s *CredentialStore) Get(name string) (string, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return "", fmt.Errorf("credential not found: %s", name)
	}

	value, err := DecryptString(string(data), string(GetMachineKey(machineIdentifier())))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return value, nil
}

// Has reports whether a credential exists.
func (s *CredentialStore) Has(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Delete removes a credential. Deleting a missing credential is not an
// error.
func (s *CredentialStore) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credential file: %w", err)
	}
	return nil
}

func (s *CredentialStore) path(name string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
	return filepath.Join(s.dir, safe+".cred")
}

// machineIdentifier returns a stable per-machine identifier used to
// derive the encryption key.
func machineIdentifier() string {
	if runtime.GOOS == "linux" {
		if data, err := os.ReadFile("/etc/machine-id"); err == nil {
			return "linux:" + strings.TrimSpace(string(data))
		}
		if data, err := os.ReadFile("/var/lib/dbus/machine-id"); err == nil {
			return "linux:" + strings.TrimSpace(string(data))
		}
	}
	hostname, _ := os.Hostname()
	return runtime.GOOS + ":" + hostname
}
