// Package credential resolves API keys from the OS keychain, the
// environment, and the configuration file, in that order.
//
// Storing keys in the keychain (via the Set command) keeps them out of config
// files that tend to end up in dotfile repos. The environment fallback keeps
// headless and CI usage working, and the config value remains a last resort.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// service is the keychain service name all kaigi credentials are stored
// under. The credential name is used as the keychain account.
const service = "kaigi"

// ErrNotFound is returned when a credential is absent from every source.
var ErrNotFound = errors.New("credential: not found")

// Resolve returns the credential with the given name, checking the OS
// keychain, then the envVar environment variable, then configValue.
//
// A keychain backend error other than "not found" (e.g., no D-Bus secret
// service on a headless Linux box) is treated as absence so the fallback
// chain still works.
func Resolve(name, envVar, configValue string) (string, error) {
	if v, err := keyring.Get(service, name); err == nil && v != "" {
		return v, nil
	}
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	if configValue != "" {
		return configValue, nil
	}
	return "", fmt.Errorf("credential %q: set it with `kaigi credential set %s`, the %s environment variable, or the config file: %w",
		name, name, envVar, ErrNotFound)
}

// Set stores a credential in the OS keychain.
func Set(name, value string) error {
	if err := keyring.Set(service, name, value); err != nil {
		return fmt.Errorf("credential %q: store in keychain: %w", name, err)
	}
	return nil
}

// Delete removes a credential from the OS keychain. Deleting a credential
// that is not stored is not an error.
func Delete(name string) error {
	err := keyring.Delete(service, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credential %q: delete from keychain: %w", name, err)
	}
	return nil
}
