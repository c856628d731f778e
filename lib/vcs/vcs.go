// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

// Package vcs wraps the git CLI for creature working trees. The
// supervisor uses three operations: reading the current HEAD revision,
// reading and writing the last-good revision marker, and hard-resetting
// the tree to a revision during rollback. All commands target the
// creature directory via the -C flag, which every Repository method
// injects automatically.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// lastGoodFile is the sidecar file holding the last promoted revision,
// relative to the repository directory. It lives outside the working
// tree contents so a hard reset never touches it.
const lastGoodFile = ".openseed-last-good"

// revisionPattern matches a syntactically plausible git object name:
// an abbreviated or full hex hash. ResetHard refuses anything else so
// a hostile revision string can never smuggle flags or refspec syntax
// into the git command line.
var revisionPattern = regexp.MustCompile(`^[0-9a-f]{4,64}$`)

// ErrInvalidRevision is returned when a revision string does not look
// like a git object name.
var ErrInvalidRevision = errors.New("vcs: not a plausible revision identifier")

// Repository is a git working tree at a specific directory. There is
// no default directory, so callers always say which tree they mean.
type Repository struct {
	dir string
}

// Open returns a Repository targeting the given working tree directory.
func Open(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Head returns the full hash of the current HEAD revision.
func (r *Repository) Head(ctx context.Context) (string, error) {
	output, err := r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// LastGood returns the last promoted revision from the marker file.
// When no marker exists (a fresh repository whose first revision is
// trusted until proven otherwise) it falls back to the current HEAD.
func (r *Repository) LastGood(ctx context.Context) (string, error) {
	data, err := os.ReadFile(r.lastGoodPath())
	if err != nil {
		if os.IsNotExist(err) {
			return r.Head(ctx)
		}
		return "", fmt.Errorf("vcs: reading last-good marker: %w", err)
	}
	revision := strings.TrimSpace(string(data))
	if revision == "" {
		return r.Head(ctx)
	}
	return revision, nil
}

// SetLastGood persists revision as the last-good marker. The write is
// atomic (temporary file then rename) so a crash mid-write can never
// leave a truncated marker.
func (r *Repository) SetLastGood(revision string) error {
	if !revisionPattern.MatchString(revision) {
		return fmt.Errorf("%w: %q", ErrInvalidRevision, revision)
	}

	path := r.lastGoodPath()
	temporaryPath := path + ".tmp"
	if err := os.WriteFile(temporaryPath, []byte(revision+"\n"), 0644); err != nil {
		return fmt.Errorf("vcs: writing last-good marker: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("vcs: renaming last-good marker into place: %w", err)
	}
	return nil
}

// ResetHard discards the working tree and index, moving HEAD to the
// given revision. Used only for rollback. The revision must match
// revisionPattern; this is the one place a stored string reaches a
// shell-adjacent surface.
func (r *Repository) ResetHard(ctx context.Context, revision string) error {
	if !revisionPattern.MatchString(revision) {
		return fmt.Errorf("%w: %q", ErrInvalidRevision, revision)
	}
	if _, err := r.run(ctx, "reset", "--hard", revision); err != nil {
		return err
	}
	return nil
}

// lastGoodPath returns the absolute path of the last-good marker file.
func (r *Repository) lastGoodPath() string {
	return filepath.Join(r.dir, lastGoodFile)
}

// run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("vcs: git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
