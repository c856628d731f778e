// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openseed-dev/openseed/lib/clock"
	"github.com/openseed-dev/openseed/lib/eventlog"
)

// State is the supervisor's position in the promotion cycle.
type State string

const (
	// StateStarting: the child is being spawned.
	StateStarting State = "STARTING"

	// StateHealthPending: health checks are running but the revision
	// has not yet been continuously healthy for the full gate.
	StateHealthPending State = "HEALTH_PENDING"

	// StateHealthy: the revision was promoted to last-good; per-cycle
	// timers are stopped.
	StateHealthy State = "HEALTHY"

	// StateRollingBack: a failure is being reverted. Terminal for the
	// cycle; a fresh spawn leaves it.
	StateRollingBack State = "ROLLING_BACK"
)

// Default cycle timings.
const (
	DefaultPollInterval     = 1 * time.Second
	DefaultHealthGate       = 10 * time.Second
	DefaultRollbackDeadline = 30 * time.Second
)

// ErrStopped is returned by operations on a supervisor after Stop.
var ErrStopped = errors.New("host: supervisor is stopped")

// VersionControl is the subset of the creature repository the
// supervisor drives. Implemented by *vcs.Repository.
type VersionControl interface {
	Head(ctx context.Context) (string, error)
	LastGood(ctx context.Context) (string, error)
	SetLastGood(revision string) error
	ResetHard(ctx context.Context, revision string) error
}

// Launcher spawns the creature process from its working tree.
type Launcher interface {
	Launch(ctx context.Context) (Child, error)
}

// Child is a running creature process.
type Child interface {
	PID() int

	// Terminate asks the process to exit. Idempotent.
	Terminate() error

	// Wait blocks until the process exits and returns nil for a clean
	// exit, an error for a non-zero or signal-terminated one.
	Wait() error
}

// HealthProbe checks the creature's health endpoint once. A nil return
// is a healthy poll.
type HealthProbe interface {
	Check(ctx context.Context) error
}

// Params configures a Supervisor. Name, Repo, Launcher, Probe, and
// Events are required; zero timings take the defaults.
type Params struct {
	Name     string
	Repo     VersionControl
	Launcher Launcher
	Probe    HealthProbe
	Events   *eventlog.Log
	Clock    clock.Clock
	Logger   *slog.Logger

	PollInterval     time.Duration
	HealthGate       time.Duration
	RollbackDeadline time.Duration
}

// Status is the supervisor's externally visible state.
type Status struct {
	Name             string `json:"name"`
	State            State  `json:"state"`
	CurrentRevision  string `json:"current_revision"`
	LastGoodRevision string `json:"last_good_revision"`
	PID              int    `json:"pid"`
	Healthy          bool   `json:"healthy"`
}

// Supervisor owns one creature's lifecycle. All transitions are
// serialized by one mutex, and every timer callback and child-exit
// notification carries the cycle number it was armed in: a callback
// from a superseded cycle is a no-op, so a restart racing a rollback
// cannot double-spawn.
type Supervisor struct {
	name     string
	repo     VersionControl
	launcher Launcher
	probe    HealthProbe
	events   *eventlog.Log
	clock    clock.Clock
	logger   *slog.Logger

	pollInterval     time.Duration
	healthGate       time.Duration
	rollbackDeadline time.Duration

	mu      sync.Mutex
	cycle   int
	state   State
	started bool
	closed  bool

	child           Child
	currentRevision string
	lastGood        string
	healthySince    time.Time

	pollTimer     *clock.Timer
	deadlineTimer *clock.Timer
}

// New creates a Supervisor. It does not spawn anything until Start.
func New(params Params) *Supervisor {
	if params.Clock == nil {
		params.Clock = clock.Real()
	}
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	if params.PollInterval <= 0 {
		params.PollInterval = DefaultPollInterval
	}
	if params.HealthGate <= 0 {
		params.HealthGate = DefaultHealthGate
	}
	if params.RollbackDeadline <= 0 {
		params.RollbackDeadline = DefaultRollbackDeadline
	}
	return &Supervisor{
		name:             params.Name,
		repo:             params.Repo,
		launcher:         params.Launcher,
		probe:            params.Probe,
		events:           params.Events,
		clock:            params.Clock,
		logger:           params.Logger.With("creature", params.Name),
		pollInterval:     params.PollInterval,
		healthGate:       params.HealthGate,
		rollbackDeadline: params.RollbackDeadline,
		state:            StateStarting,
	}
}

// Start emits the boot event and spawns the first cycle.
func (supervisor *Supervisor) Start(ctx context.Context) error {
	supervisor.mu.Lock()
	defer supervisor.mu.Unlock()
	if supervisor.closed {
		return ErrStopped
	}
	if supervisor.started {
		return errors.New("host: supervisor already started")
	}
	supervisor.started = true

	supervisor.appendEvent(eventlog.HostBoot())
	if lastGood, err := supervisor.repo.LastGood(ctx); err == nil {
		supervisor.lastGood = lastGood
	}
	return supervisor.spawnLocked(ctx)
}

// Restart kills the running child and respawns at the current HEAD.
// The exit is expected and does not count as a crash; the new revision
// goes through the identical health gate, so a broken self-modification
// is caught one cycle later exactly like a crash would be.
func (supervisor *Supervisor) Restart(ctx context.Context) error {
	supervisor.mu.Lock()
	defer supervisor.mu.Unlock()
	if supervisor.closed {
		return ErrStopped
	}
	if !supervisor.started {
		return errors.New("host: supervisor not started")
	}

	supervisor.stopTimersLocked()
	supervisor.terminateChildLocked()
	return supervisor.spawnLocked(ctx)
}

// Stop terminates the child and invalidates all pending callbacks. The
// exit is expected; nothing is respawned.
func (supervisor *Supervisor) Stop() {
	supervisor.mu.Lock()
	defer supervisor.mu.Unlock()
	if supervisor.closed {
		return
	}
	supervisor.closed = true
	supervisor.cycle++
	supervisor.stopTimersLocked()
	supervisor.terminateChildLocked()
	supervisor.child = nil
}

// Status reports the supervisor's externally visible state.
func (supervisor *Supervisor) Status() Status {
	supervisor.mu.Lock()
	defer supervisor.mu.Unlock()

	pid := 0
	if supervisor.child != nil {
		pid = supervisor.child.PID()
	}
	return Status{
		Name:             supervisor.name,
		State:            supervisor.state,
		CurrentRevision:  supervisor.currentRevision,
		LastGoodRevision: supervisor.lastGood,
		PID:              pid,
		Healthy:          supervisor.state == StateHealthy || !supervisor.healthySince.IsZero(),
	}
}

// spawnLocked starts a new cycle: read HEAD, launch the child, arm the
// health poll and the rollback deadline. Callers hold the mutex.
func (supervisor *Supervisor) spawnLocked(ctx context.Context) error {
	supervisor.cycle++
	cycle := supervisor.cycle
	supervisor.state = StateStarting
	supervisor.healthySince = time.Time{}

	head, err := supervisor.repo.Head(ctx)
	if err != nil {
		return fmt.Errorf("host: reading HEAD before spawn: %w", err)
	}
	supervisor.currentRevision = head
	if supervisor.lastGood == "" {
		// A fresh repository's first revision is trusted until proven
		// otherwise.
		supervisor.lastGood = head
	}

	child, err := supervisor.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("host: spawning creature: %w", err)
	}
	supervisor.child = child
	supervisor.state = StateHealthPending

	supervisor.appendEvent(eventlog.HostSpawn(child.PID(), head))
	supervisor.logger.Info("spawned creature", "pid", child.PID(), "revision", head)

	supervisor.pollTimer = supervisor.clock.AfterFunc(supervisor.pollInterval, func() {
		supervisor.pollHealth(cycle)
	})
	supervisor.deadlineTimer = supervisor.clock.AfterFunc(supervisor.rollbackDeadline, func() {
		supervisor.deadlineExpired(cycle)
	})
	go supervisor.waitChild(cycle, child)
	return nil
}

// pollHealth is the 1-second health tick. It probes outside the mutex,
// then applies the result if its cycle is still current.
func (supervisor *Supervisor) pollHealth(cycle int) {
	ctx, cancel := context.WithTimeout(context.Background(), supervisor.pollInterval)
	probeErr := supervisor.probe.Check(ctx)
	cancel()

	supervisor.mu.Lock()
	defer supervisor.mu.Unlock()
	if cycle != supervisor.cycle || supervisor.state != StateHealthPending {
		return
	}

	now := supervisor.clock.Now()
	if probeErr != nil {
		// One failed poll resets the promotion clock: health is not
		// sticky.
		if !supervisor.healthySince.IsZero() {
			supervisor.logger.Info("health poll failed, promotion clock reset", "error", probeErr)
		}
		supervisor.healthySince = time.Time{}
	} else {
		if supervisor.healthySince.IsZero() {
			supervisor.healthySince = now
		}
		if now.Sub(supervisor.healthySince) >= supervisor.healthGate {
			supervisor.promoteLocked()
			return
		}
	}

	supervisor.pollTimer = supervisor.clock.AfterFunc(supervisor.pollInterval, func() {
		supervisor.pollHealth(cycle)
	})
}

// promoteLocked persists the current revision as last-good and stops
// both per-cycle timers.
func (supervisor *Supervisor) promoteLocked() {
	if err := supervisor.repo.SetLastGood(supervisor.currentRevision); err != nil {
		// Leave the cycle pending; the rollback deadline still covers
		// it if the marker stays unwritable.
		supervisor.logger.Error("persisting last-good marker", "revision", supervisor.currentRevision, "error", err)
		cycle := supervisor.cycle
		supervisor.pollTimer = supervisor.clock.AfterFunc(supervisor.pollInterval, func() {
			supervisor.pollHealth(cycle)
		})
		return
	}

	supervisor.stopTimersLocked()
	supervisor.state = StateHealthy
	supervisor.lastGood = supervisor.currentRevision
	supervisor.appendEvent(eventlog.HostPromote(supervisor.currentRevision))
	supervisor.logger.Info("promoted revision", "revision", supervisor.currentRevision)
}

// deadlineExpired is the one-shot rollback deadline.
func (supervisor *Supervisor) deadlineExpired(cycle int) {
	supervisor.mu.Lock()
	defer supervisor.mu.Unlock()
	if cycle != supervisor.cycle || supervisor.state != StateHealthPending {
		return
	}
	supervisor.rollbackLocked(context.Background(), "health timeout")
}

// waitChild reports the child's exit to the state machine.
func (supervisor *Supervisor) waitChild(cycle int, child Child) {
	err := child.Wait()

	supervisor.mu.Lock()
	defer supervisor.mu.Unlock()
	// Exits requested by the supervisor arrive under a superseded
	// cycle number (restart, rollback) or after close, and are ignored.
	if cycle != supervisor.cycle || supervisor.closed || supervisor.state == StateRollingBack {
		return
	}

	if err == nil {
		supervisor.logger.Warn("creature exited cleanly without a restart request")
		supervisor.stopTimersLocked()
		supervisor.child = nil
		return
	}

	supervisor.logger.Warn("creature crashed", "error", err)
	supervisor.rollbackLocked(context.Background(), "crash")
}

// rollbackLocked reverts the working tree to last-good and respawns.
// The reset is all-or-nothing: if it fails, the cycle is abandoned with
// no partial rollback and no respawn.
func (supervisor *Supervisor) rollbackLocked(ctx context.Context, reason string) {
	supervisor.stopTimersLocked()
	supervisor.state = StateRollingBack
	from := supervisor.currentRevision

	supervisor.terminateChildLocked()

	// The baseline is the in-memory last-good, captured when this cycle
	// spawned. The marker file is not re-read here: before the first
	// promotion it falls back to the current HEAD, which after a restart
	// into an ungated revision would make the rollback target the very
	// revision that just failed.
	to := supervisor.lastGood
	if err := supervisor.repo.ResetHard(ctx, to); err != nil {
		supervisor.logger.Error("rollback abandoned: resetting working tree", "revision", to, "error", err)
		return
	}

	supervisor.appendEvent(eventlog.HostRollback(from, to, reason))
	supervisor.logger.Warn("rolled back", "from", from, "to", to, "reason", reason)

	if err := supervisor.spawnLocked(ctx); err != nil {
		supervisor.logger.Error("respawn after rollback failed", "error", err)
	}
}

func (supervisor *Supervisor) stopTimersLocked() {
	// Both timers are always cleared together so a stale deadline
	// cannot fire after a promotion, or a stale poll against a child
	// that was already replaced.
	if supervisor.pollTimer != nil {
		supervisor.pollTimer.Stop()
		supervisor.pollTimer = nil
	}
	if supervisor.deadlineTimer != nil {
		supervisor.deadlineTimer.Stop()
		supervisor.deadlineTimer = nil
	}
}

func (supervisor *Supervisor) terminateChildLocked() {
	if supervisor.child == nil {
		return
	}
	if err := supervisor.child.Terminate(); err != nil {
		supervisor.logger.Warn("terminating creature", "error", err)
	}
}

func (supervisor *Supervisor) appendEvent(event eventlog.Event) {
	if _, err := supervisor.events.Append(event); err != nil {
		supervisor.logger.Error("appending event", "type", event.Type, "error", err)
	}
}
