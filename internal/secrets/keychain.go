// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// DefaultKeychainService is used when a keyring key names no service.
const DefaultKeychainService = "apiscenario"

// KeychainBackend reads secrets from the system keychain.
// Supported platforms:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
//
// Keys have the form "service/account"; a key without a slash is looked
// up under DefaultKeychainService.
type KeychainBackend struct{}

// NewKeychainBackend creates a new keychain backend.
func NewKeychainBackend() *KeychainBackend {
	return &KeychainBackend{}
}

// Name returns the backend identifier.
func (k *KeychainBackend) Name() string {
	return "keyring"
}

// Get retrieves a secret from the system keychain.
func (k *KeychainBackend) Get(_ context.Context, key string) (string, error) {
	service, account := SplitKeychainKey(key)
	value, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
		}
		if isKeychainUnavailableError(err) {
			return "", fmt.Errorf("%w: %s", ErrBackendUnavailable, err.Error())
		}
		return "", fmt.Errorf("keychain error: %w", err)
	}
	return value, nil
}

// SplitKeychainKey splits "service/account" into its parts.
func SplitKeychainKey(key string) (service, account string) {
	if i := strings.Index(key, "/"); i > 0 {
		return key[:i], key[i+1:]
	}
	return DefaultKeychainService, key
}

func isKeychainUnavailableError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"locked", "not available", "no such interface", "cannot autolaunch", "dbus"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
