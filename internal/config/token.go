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

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"

	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// keychainService is the service name tokens are stored under. The
// account is the SSC URL.
const keychainService = "sscgate"

// ResolveToken returns the SSC token from the configured environment
// variable, falling back to the OS keychain.
func (c *Config) ResolveToken() (string, error) {
	if c.SSC.TokenEnv != "" {
		if tok := os.Getenv(c.SSC.TokenEnv); tok != "" {
			return tok, nil
		}
	}
	if c.SSC.URL == "" {
		return "", &sscerrors.ConfigError{Key: "ssc.url", Reason: "no SSC URL configured"}
	}

	tok, err := keyring.Get(keychainService, c.SSC.URL)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", &sscerrors.ConfigError{
			Key:    "ssc.token",
			Reason: fmt.Sprintf("no token in $%s or the keychain for %s", c.SSC.TokenEnv, c.SSC.URL),
		}
	}
	if err != nil {
		return "", &sscerrors.ConfigError{Key: "ssc.token", Reason: "keychain lookup failed", Cause: err}
	}
	return tok, nil
}

// StoreToken saves token in the OS keychain for the configured SSC URL.
func (c *Config) StoreToken(token string) error {
	if c.SSC.URL == "" {
		return &sscerrors.ConfigError{Key: "ssc.url", Reason: "no SSC URL configured"}
	}
	if err := keyring.Set(keychainService, c.SSC.URL, token); err != nil {
		return &sscerrors.ConfigError{Key: "ssc.token", Reason: "keychain write failed", Cause: err}
	}
	return nil
}

// DeleteToken removes the stored token. A missing token is not an error.
func (c *Config) DeleteToken() error {
	err := keyring.Delete(keychainService, c.SSC.URL)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return &sscerrors.ConfigError{Key: "ssc.token", Reason: "keychain delete failed", Cause: err}
	}
	return nil
}
