package keychain

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "smsrelay"

// Get retrieves a secret from the system keychain.
func Get(account string) (string, error) {
	v, err := keyring.Get(serviceName, account)
	if err != nil {
		return "", fmt.Errorf("keychain %q: %w", account, err)
	}
	return v, nil
}

// Set stores a secret in the system keychain.
func Set(account, value string) error {
	return keyring.Set(serviceName, account, value)
}
