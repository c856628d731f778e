// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

// Package host supervises one creature process: it spawns the child
// from the creature's working tree, polls its health endpoint, promotes
// the running revision to last-good once it has been continuously
// healthy for the full gate, and rolls the tree back to last-good on a
// crash or a health timeout. Every transition is appended to the
// creature's event log.
//
// The supervisor is a miniature canary deploy against a single
// replica: a creature rewrites its own code and asks to be restarted
// into the new revision, and the identical gate decides whether that
// revision becomes the new baseline or gets reverted.
package host
