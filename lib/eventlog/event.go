// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"encoding/json"
	"time"
)

// Type discriminates event variants on the wire. Host events record
// supervisor decisions; creature events are ingested from the child.
type Type string

const (
	// TypeHostBoot marks supervisor startup for a creature.
	TypeHostBoot Type = "host_boot"

	// TypeHostSpawn records a child spawn: pid and revision.
	TypeHostSpawn Type = "host_spawn"

	// TypeHostPromote records a revision passing the health gate.
	TypeHostPromote Type = "host_promote"

	// TypeHostRollback records a revert to last-good: from, to, reason.
	TypeHostRollback Type = "host_rollback"

	// TypeCreatureBoot is emitted by the child once it is serving.
	TypeCreatureBoot Type = "creature_boot"

	// TypeCreatureThought is a free-text intent from the child's
	// reasoning loop.
	TypeCreatureThought Type = "creature_thought"

	// TypeCreatureToolCall records one tool invocation by the child.
	TypeCreatureToolCall Type = "creature_tool_call"

	// TypeCreatureChecks records a self-check command run by the child.
	TypeCreatureChecks Type = "creature_checks"

	// TypeCreatureRestart is the child asking to be respawned at a
	// newly committed revision.
	TypeCreatureRestart Type = "creature_restart_request"
)

// Event is one immutable record in a creature's log. Exactly one
// variant's payload fields are set, selected by Type. Seq is assigned
// at append time and is the authoritative ordering; Time is advisory.
type Event struct {
	Seq  int64     `json:"seq"`
	Type Type      `json:"type"`
	Time time.Time `json:"time"`

	// Host spawn / promote / rollback / creature boot and restart.
	PID      int    `json:"pid,omitempty"`
	Revision string `json:"revision,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// Creature thought.
	Text string `json:"text,omitempty"`

	// Creature tool call and checks.
	Tool       string          `json:"tool,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Command    string          `json:"command,omitempty"`
	OK         *bool           `json:"ok,omitempty"`
	Output     string          `json:"output,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
}

// HostBoot returns a host boot event.
func HostBoot() Event {
	return Event{Type: TypeHostBoot}
}

// HostSpawn returns a host spawn event for a child pid and revision.
func HostSpawn(pid int, revision string) Event {
	return Event{Type: TypeHostSpawn, PID: pid, Revision: revision}
}

// HostPromote returns a promotion event for a revision that sustained
// health for the full gate duration.
func HostPromote(revision string) Event {
	return Event{Type: TypeHostPromote, Revision: revision}
}

// HostRollback returns a rollback event. from is the revision that
// failed, to is the last-good revision being restored.
func HostRollback(from, to, reason string) Event {
	return Event{Type: TypeHostRollback, From: from, To: to, Reason: reason}
}

// CreatureBoot returns a creature boot event at a revision.
func CreatureBoot(revision string) Event {
	return Event{Type: TypeCreatureBoot, Revision: revision}
}

// CreatureThought returns a free-text intent event.
func CreatureThought(text string) Event {
	return Event{Type: TypeCreatureThought, Text: text}
}

// CreatureToolCall returns a tool invocation event.
func CreatureToolCall(tool string, input json.RawMessage, ok bool, output string, duration time.Duration) Event {
	return Event{
		Type:       TypeCreatureToolCall,
		Tool:       tool,
		Input:      input,
		OK:         &ok,
		Output:     output,
		DurationMS: duration.Milliseconds(),
	}
}

// CreatureChecks returns a self-check event with the output tail.
func CreatureChecks(command string, ok bool, duration time.Duration, outputTail string) Event {
	return Event{
		Type:       TypeCreatureChecks,
		Command:    command,
		OK:         &ok,
		Output:     outputTail,
		DurationMS: duration.Milliseconds(),
	}
}

// CreatureRestart returns a restart-request event for a revision the
// child has just committed.
func CreatureRestart(revision string) Event {
	return Event{Type: TypeCreatureRestart, Revision: revision}
}
