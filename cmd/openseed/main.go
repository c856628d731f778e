// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

// Openseed hosts autonomous self-modifying creature processes: it
// supervises one child per managed creature, gates every revision
// through a health check before promoting it to the rollback baseline,
// and fronts the creature's LLM traffic through a translating,
// budget-enforcing gateway.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "openseed",
	Short: "Supervisor and protocol gateway for self-modifying creatures",
	Long: `Openseed keeps a self-modifying agent process ("creature") alive and
safe: every spawn is health-gated before its revision becomes the new
rollback baseline, every failure reverts the working tree to the last
revision that earned promotion, and every LLM call the creature makes
is routed, translated, and billed through one canonical protocol.

Commands:
  openseed host     Run the supervisor and gateway for one creature
  openseed status   Show a running host's state
  openseed events   Stream a running host's event log
  openseed token    Print the creature token for a name`,
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to openseed.yaml (defaults to $OPENSEED_CONFIG)")
	// Accept snake_case flag spellings so flags match config keys.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(flags *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}

// resolveConfigPath applies the OPENSEED_CONFIG fallback. There is no
// further discovery: configuration is explicit or absent.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	if env := os.Getenv("OPENSEED_CONFIG"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("no config: pass --config or set OPENSEED_CONFIG")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
