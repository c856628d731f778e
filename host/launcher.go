// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"golang.org/x/sys/unix"
)

// ExecLauncher spawns the creature as an OS process running inside its
// working tree. The child inherits the host environment plus the
// creature-specific variables (name, ports, token, iterate flag) and
// writes to the supervisor's stdout/stderr.
type ExecLauncher struct {
	command []string
	dir     string
	env     map[string]string
}

// NewExecLauncher builds a launcher for argv command, run in dir with
// the extra environment variables env.
func NewExecLauncher(command []string, dir string, env map[string]string) (*ExecLauncher, error) {
	if len(command) == 0 {
		return nil, errors.New("host: creature command is empty")
	}
	return &ExecLauncher{command: command, dir: dir, env: env}, nil
}

// Launch starts the creature process.
func (launcher *ExecLauncher) Launch(ctx context.Context) (Child, error) {
	cmd := exec.Command(launcher.command[0], launcher.command[1:]...)
	cmd.Dir = launcher.dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	cmd.Env = os.Environ()
	keys := make([]string, 0, len(launcher.env))
	for key := range launcher.env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cmd.Env = append(cmd.Env, key+"="+launcher.env[key])
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("host: starting %q: %w", launcher.command[0], err)
	}
	return &execChild{cmd: cmd}, nil
}

// execChild wraps a started process.
type execChild struct {
	cmd *exec.Cmd
}

func (child *execChild) PID() int { return child.cmd.Process.Pid }

// Terminate sends SIGTERM. Signaling an already-exited process is not
// an error.
func (child *execChild) Terminate() error {
	err := child.cmd.Process.Signal(unix.SIGTERM)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return fmt.Errorf("host: terminating pid %d: %w", child.cmd.Process.Pid, err)
}

// Wait blocks until the process exits. A non-zero or signal-terminated
// status is returned as the *exec.ExitError.
func (child *execChild) Wait() error {
	return child.cmd.Wait()
}
