// Package keyring keeps the SSH passwords used to repair network debugging
// on devices in the operating system's credential store.
package keyring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const (
	serviceName = "devhub-ssh"
)

var (
	ring     keyring.Keyring
	ringOnce sync.Once
	ringErr  error
)

// initKeyring initializes the keyring with fallback options
func initKeyring() (keyring.Keyring, error) {
	ringOnce.Do(func() {
		ring, ringErr = keyring.Open(keyring.Config{
			ServiceName: serviceName,
			AllowedBackends: []keyring.BackendType{
				keyring.KeychainBackend,      // macOS Keychain
				keyring.SecretServiceBackend, // Linux Secret Service (GNOME Keyring, KWallet)
				keyring.WinCredBackend,       // Windows Credential Manager
				keyring.PassBackend,          // Pass (password-store.org)
			},
		})
	})
	return ring, ringErr
}

func itemKey(user string) string {
	return "ssh:" + user
}

// SetPassword stores the SSH password for user
func SetPassword(user, password string) error {
	if user == "" {
		return errors.New("ssh user is required")
	}
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	return kr.Set(keyring.Item{
		Key:         itemKey(user),
		Data:        []byte(password),
		Label:       fmt.Sprintf("devhub SSH password for %s", user),
		Description: "Used to re-enable network debugging on devices",
	})
}

// GetPassword retrieves the SSH password for user.
// Returns empty string if no password is stored
func GetPassword(user string) (string, error) {
	kr, err := initKeyring()
	if err != nil {
		return "", fmt.Errorf("failed to open keyring: %w", err)
	}

	item, err := kr.Get(itemKey(user))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve password: %w", err)
	}
	return string(item.Data), nil
}

// DeletePassword removes the stored SSH password for user
func DeletePassword(user string) error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	// Not every backend reports a missing key on Remove
	if _, err := kr.Get(itemKey(user)); errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("no password stored for '%s'", user)
	}
	return kr.Remove(itemKey(user))
}

// HasPassword checks if a password is stored for user
func HasPassword(user string) bool {
	kr, err := initKeyring()
	if err != nil {
		return false
	}

	_, err = kr.Get(itemKey(user))
	return err == nil
}

// ResolvePassword returns configured when it is set and falls back to the
// keyring otherwise. An unavailable keyring is not an error.
func ResolvePassword(user, configured string) string {
	if configured != "" {
		return configured
	}
	password, err := GetPassword(user)
	if err != nil {
		return ""
	}
	return password
}
