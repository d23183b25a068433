// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/passgate/passgate/internal/auth"
)

// NewHashCmd creates the hash subcommand.
func NewHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print the argon2id verifier for a password read from stdin",
		Long: `Hash the first line of standard input with the configured argon2id
parameters and print the encoded verifier. Useful for seeding identities
by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hasher, err := auth.NewArgon2idHasherWithParams(cfg.Hash)
			if err != nil {
				return err
			}
			verifier, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			cmd.Println(verifier)
			return nil
		},
	}
}
