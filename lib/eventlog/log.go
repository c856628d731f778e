// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventlog is the append-only system of record for everything
// a supervisor and its creature have done. One newline-delimited JSON
// file per creature, created on first use; every append also publishes
// synchronously to live subscribers, which drives the host's event
// stream. There is no compaction, mutation, or deletion; all UI state
// is derived by replay or live tail.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/openseed-dev/openseed/lib/clock"
)

// Log is an append-only event log with synchronous fan-out.
// All methods are safe for concurrent use.
type Log struct {
	mu          sync.Mutex
	path        string
	file        *os.File
	nextSeq     int64
	subscribers map[int]chan Event
	nextSubID   int
	clock       clock.Clock
	logger      *slog.Logger
}

// Open opens (or creates) the event log at path. Parent directories
// are created as needed. The next sequence number continues from the
// existing log contents.
func Open(path string, clk clock.Clock, logger *slog.Logger) (*Log, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("eventlog: creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: opening log file: %w", err)
	}

	log := &Log{
		path:        path,
		file:        file,
		nextSeq:     1,
		subscribers: make(map[int]chan Event),
		clock:       clk,
		logger:      logger,
	}

	// Continue sequence numbering after the last existing event.
	existing, err := log.Replay()
	if err != nil {
		file.Close()
		return nil, err
	}
	if len(existing) > 0 {
		log.nextSeq = existing[len(existing)-1].Seq + 1
	}

	return log, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append durably writes one event and publishes it to all live
// subscribers before returning. Seq and Time are assigned here; any
// values the caller set are overwritten.
func (l *Log) Append(event Event) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	event.Seq = l.nextSeq
	event.Time = l.clock.Now()

	line, err := json.Marshal(event)
	if err != nil {
		return Event{}, fmt.Errorf("eventlog: marshaling event: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return Event{}, fmt.Errorf("eventlog: appending event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return Event{}, fmt.Errorf("eventlog: syncing log: %w", err)
	}
	l.nextSeq++

	// Synchronous fan-out. A subscriber that has fallen behind loses
	// the event rather than blocking the append path; the durable log
	// is the system of record, not the live channel.
	for id, subscriber := range l.subscribers {
		select {
		case subscriber <- event:
		default:
			l.logger.Warn("event subscriber fell behind, dropping event",
				"subscriber", id, "seq", event.Seq, "type", event.Type)
		}
	}

	return event, nil
}

// Replay reads every event from the log in append order.
func (l *Log) Replay() ([]Event, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("eventlog: opening log for replay: %w", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("eventlog: corrupt event at line %d: %w", len(events)+1, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: reading log: %w", err)
	}
	return events, nil
}

// Tail returns the most recent n events in append order. Returns all
// events when the log holds fewer than n.
func (l *Log) Tail(n int) ([]Event, error) {
	events, err := l.Replay()
	if err != nil {
		return nil, err
	}
	if len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// Subscribe registers a live consumer. Events appended after Subscribe
// returns are delivered on the channel (up to buffer queued). The
// cancel function unregisters the subscriber and closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSubID
	l.nextSubID++
	channel := make(chan Event, buffer)
	l.subscribers[id] = channel

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subscribers[id]; ok {
			delete(l.subscribers, id)
			close(channel)
		}
	}
	return channel, cancel
}

// Close closes the log file. Subscribers are unregistered and their
// channels closed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, subscriber := range l.subscribers {
		delete(l.subscribers, id)
		close(subscriber)
	}
	return l.file.Close()
}
