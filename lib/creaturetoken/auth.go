// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package creaturetoken

import (
	"net"
	"net/http"
	"strings"
)

// IdentityHeader carries the caller's claimed creature name. The
// bearer token is checked against this claim, then the claim is
// checked against the target creature: a valid token for creature X
// must not control creature Y.
const IdentityHeader = "X-OpenSeed-Creature"

// Decision is the outcome of authorizing a creature-scoped request.
type Decision int

const (
	// Allowed: loopback origin, or a valid token for the target creature.
	Allowed Decision = iota

	// Unauthorized: no token, or a token that is not valid for the
	// claimed identity. Maps to HTTP 401.
	Unauthorized

	// Forbidden: a valid token whose identity is not the target
	// creature (self-management only). Maps to HTTP 403.
	Forbidden
)

// Authorize decides whether request may control the creature named
// target. Requests from loopback are trusted unconditionally (the
// local dashboard and CLI). Everything else needs a bearer token that
// verifies for the claimed identity, and the claimed identity must be
// the target itself.
func Authorize(request *http.Request, secret []byte, target string) Decision {
	if isLoopback(request.RemoteAddr) {
		return Allowed
	}

	token, ok := bearerToken(request)
	if !ok {
		return Unauthorized
	}

	claimed := request.Header.Get(IdentityHeader)
	if claimed == "" {
		claimed = target
	}
	if !Verify(secret, claimed, token) {
		return Unauthorized
	}
	if claimed != target {
		return Forbidden
	}
	return Allowed
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(request *http.Request) (string, bool) {
	header := request.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// isLoopback reports whether a RemoteAddr originates from the local
// host. Unparseable addresses are not trusted.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
