package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the keyring service under which remote access keys are stored.
// Entries are keyed by the remote host.
const KeyringService = "clinicsync-remote"

// ErrNotInKeyring is returned when no key is stored for a host
var ErrNotInKeyring = errors.New("no access key stored in keyring")

// Set stores the access key for a remote host in the OS keyring
func Set(host, accessKey string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if accessKey == "" {
		return fmt.Errorf("access key cannot be empty")
	}

	if err := keyring.Set(KeyringService, host, accessKey); err != nil {
		return fmt.Errorf("failed to store access key in keyring: %w", err)
	}
	return nil
}

// Get retrieves the access key for a remote host from the OS keyring
func Get(host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("host cannot be empty")
	}

	key, err := keyring.Get(KeyringService, host)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w for %q", ErrNotInKeyring, host)
		}
		return "", fmt.Errorf("failed to retrieve access key from keyring: %w", err)
	}
	return key, nil
}

// Delete removes the access key for a remote host from the OS keyring
func Delete(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if err := keyring.Delete(KeyringService, host); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w for %q", ErrNotInKeyring, host)
		}
		return fmt.Errorf("failed to delete access key from keyring: %w", err)
	}
	return nil
}

// IsAvailable checks if the keyring is accessible.
// A lookup of a missing probe entry returns ErrNotFound on a working keyring.
func IsAvailable() bool {
	_, err := keyring.Get(KeyringService+"-probe", "probe")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
