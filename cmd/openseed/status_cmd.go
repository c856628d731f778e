// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/openseed-dev/openseed/host"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running host's state",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("host", "http://127.0.0.1:4600", "host base URL")
	statusCmd.Flags().Bool("json", false, "print the raw status JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	hostURL, _ := cmd.Flags().GetString("host")
	asJSON, _ := cmd.Flags().GetBool("json")

	client := &http.Client{Timeout: 5 * time.Second}
	response, err := client.Get(hostURL + "/status")
	if err != nil {
		return fmt.Errorf("reaching host: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("host answered HTTP %d", response.StatusCode)
	}

	var status host.Status
	if err := json.NewDecoder(response.Body).Decode(&status); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}

	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "creature:  %s\n", status.Name)
	fmt.Fprintf(out, "state:     %s\n", status.State)
	fmt.Fprintf(out, "healthy:   %t\n", status.Healthy)
	fmt.Fprintf(out, "pid:       %d\n", status.PID)
	fmt.Fprintf(out, "revision:  %s\n", status.CurrentRevision)
	fmt.Fprintf(out, "last-good: %s\n", status.LastGoodRevision)
	return nil
}
