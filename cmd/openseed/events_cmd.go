// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/openseed-dev/openseed/lib/eventlog"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream a running host's event log (replay, then live tail)",
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().String("host", "http://127.0.0.1:4600", "host base URL")
	eventsCmd.Flags().Bool("json", false, "print raw event JSON lines")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	hostURL, _ := cmd.Flags().GetString("host")
	asJSON, _ := cmd.Flags().GetBool("json")

	request, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, hostURL+"/events", nil)
	if err != nil {
		return err
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return fmt.Errorf("reaching host: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("host answered HTTP %d", response.StatusCode)
	}

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if asJSON {
			fmt.Fprintln(out, payload)
			continue
		}
		var event eventlog.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			fmt.Fprintln(out, payload)
			continue
		}
		fmt.Fprintln(out, formatEvent(event))
	}
	if err := scanner.Err(); err != nil && err != io.ErrUnexpectedEOF {
		return err
	}
	return nil
}

// formatEvent renders one event as a single human-readable line.
func formatEvent(event eventlog.Event) string {
	when := event.Time.Local().Format(time.TimeOnly)
	switch event.Type {
	case eventlog.TypeHostBoot:
		return fmt.Sprintf("%s  host boot", when)
	case eventlog.TypeHostSpawn:
		return fmt.Sprintf("%s  spawn pid=%d rev=%s", when, event.PID, short(event.Revision))
	case eventlog.TypeHostPromote:
		return fmt.Sprintf("%s  promote rev=%s", when, short(event.Revision))
	case eventlog.TypeHostRollback:
		return fmt.Sprintf("%s  ROLLBACK %s → %s (%s)", when, short(event.From), short(event.To), event.Reason)
	case eventlog.TypeCreatureBoot:
		return fmt.Sprintf("%s  creature up rev=%s", when, short(event.Revision))
	case eventlog.TypeCreatureThought:
		return fmt.Sprintf("%s  thought: %s", when, event.Text)
	case eventlog.TypeCreatureToolCall:
		return fmt.Sprintf("%s  tool %s ok=%v (%s)", when, event.Tool, okString(event.OK),
			humanize.SIWithDigits(float64(event.DurationMS)/1000, 1, "s"))
	case eventlog.TypeCreatureChecks:
		return fmt.Sprintf("%s  checks %q ok=%v", when, event.Command, okString(event.OK))
	case eventlog.TypeCreatureRestart:
		return fmt.Sprintf("%s  restart requested rev=%s", when, short(event.Revision))
	default:
		return fmt.Sprintf("%s  %s", when, event.Type)
	}
}

func short(revision string) string {
	if len(revision) > 8 {
		return revision[:8]
	}
	return revision
}

func okString(ok *bool) string {
	if ok == nil {
		return "?"
	}
	return fmt.Sprintf("%t", *ok)
}
