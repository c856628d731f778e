// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

// Package creaturetoken derives and verifies per-creature bearer
// tokens. A token is HMAC-SHA256(process secret, creature name), hex
// encoded: deterministic across restarts, never stored, recomputed on
// demand. A creature can prove its own identity but cannot forge
// another's.
package creaturetoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Derive returns the bearer token for a creature name under the given
// process secret.
func Derive(secret []byte, name string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(name))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether token is the valid token for name. The
// comparison is constant time.
func Verify(secret []byte, name, token string) bool {
	expected := Derive(secret, name)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}

// Fingerprint returns a short, non-reversible identifier for a process
// secret, suitable for logging so operators can tell which secret is
// live without revealing it.
func Fingerprint(secret []byte) string {
	sum := blake3.Sum256(secret)
	return hex.EncodeToString(sum[:8])
}
