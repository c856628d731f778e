// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package creaturetoken

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// SecretEnv is the environment variable consulted first for the
// process secret.
const SecretEnv = "OPENSEED_SECRET"

// secretSize is the size of a generated process secret in bytes.
const secretSize = 32

// LoadSecret resolves the process-wide authentication secret:
// the OPENSEED_SECRET environment variable if set, else the contents
// of the file at path, else a freshly generated secret persisted to
// path with mode 0600. The returned bytes are locked into RAM
// (best effort) so the secret is not written to swap.
func LoadSecret(path string) ([]byte, error) {
	if value := os.Getenv(SecretEnv); value != "" {
		return lockSecret([]byte(value)), nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		secret := []byte(strings.TrimSpace(string(data)))
		if len(secret) == 0 {
			return nil, fmt.Errorf("creaturetoken: secret file %s is empty", path)
		}
		return lockSecret(secret), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("creaturetoken: reading secret file: %w", err)
	}

	return generateSecret(path)
}

// generateSecret creates a new random secret and persists it with
// owner-only permissions. Generated once; every later load reads the
// same file so token derivation stays deterministic across restarts.
func generateSecret(path string) ([]byte, error) {
	raw := make([]byte, secretSize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("creaturetoken: generating secret: %w", err)
	}
	secret := []byte(fmt.Sprintf("%x", raw))

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creaturetoken: creating secret directory: %w", err)
	}
	if err := os.WriteFile(path, append(append([]byte{}, secret...), '\n'), 0600); err != nil {
		return nil, fmt.Errorf("creaturetoken: persisting secret: %w", err)
	}
	return lockSecret(secret), nil
}

// lockSecret pins the secret's backing memory so it cannot be swapped
// to disk. Failure (RLIMIT_MEMLOCK, unsupported platform) is ignored:
// the lock is hardening, not a correctness requirement.
func lockSecret(secret []byte) []byte {
	if len(secret) > 0 {
		_ = unix.Mlock(secret)
	}
	return secret
}
