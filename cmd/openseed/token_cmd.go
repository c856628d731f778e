// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openseed-dev/openseed/host"
	"github.com/openseed-dev/openseed/lib/creaturetoken"
)

var tokenCmd = &cobra.Command{
	Use:   "token <creature-name>",
	Short: "Print the creature token for a name",
	Long: `Derive and print the bearer token for a creature. The token is
never stored: it is recomputed from the process secret and the creature
name, so the same secret always yields the same token.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	config, err := host.LoadConfig(path)
	if err != nil {
		return err
	}

	secret, err := creaturetoken.LoadSecret(config.SecretPath())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), creaturetoken.Derive(secret, args[0]))
	return nil
}
