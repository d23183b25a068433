// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/passgate/passgate/internal/auth"
)

// NewRegisterCmd creates the register subcommand.
func NewRegisterCmd() *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an identity, reading the password from stdin",
		Long: `Create an identity in the configured identity store. The password is
read from the first line of standard input so it never appears in shell
history:

  printf '%s\n' "$PASSWORD" | passgate register --name Ann --email ann@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := setupLogger(cmd, cfg)
			if err != nil {
				return err
			}
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			b, err := openBackends(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := b.Close(); closeErr != nil {
					logger.Warn("error closing stores", "error", closeErr)
				}
			}()

			hasher, err := auth.NewArgon2idHasherWithParams(cfg.Hash)
			if err != nil {
				return err
			}
			registrar, err := auth.NewRegistrarWithLogger(b.identities, hasher, logger)
			if err != nil {
				return err
			}
			identity, err := registrar.Register(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			cmd.Println(identity.ID.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("name")  //nolint:errcheck // flag exists
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag exists

	return cmd
}

// readSecret returns the first line of r without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("STDIN_READ_FAILED").Wrap(err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("no password on standard input")
	}
	return line, nil
}
