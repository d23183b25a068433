// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

// Command gen-schema renders the JSON Schema for passgate config files.
//
// By default it writes schemas/config.schema.json. With --check it writes
// nothing and exits non-zero when the file on disk differs from what the
// current Config type produces, which lets CI catch a stale schema.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/passgate/passgate/internal/config"
)

const defaultOut = "schemas/config.schema.json"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "gen-schema: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("gen-schema", pflag.ContinueOnError)
	fs.SetOutput(stdout)
	out := fs.String("out", defaultOut, "schema file to write or check")
	check := fs.Bool("check", false, "fail if the schema file is out of date instead of writing it")
	if err := fs.Parse(args); err != nil {
		return oops.Code("USAGE").Wrap(err)
	}

	schema, err := config.GenerateSchema()
	if err != nil {
		return err
	}

	if *check {
		onDisk, err := os.ReadFile(*out) //nolint:gosec // path comes from the developer's flag
		if err != nil {
			return oops.Code("SCHEMA_READ_FAILED").With("path", *out).Wrap(err)
		}
		if !bytes.Equal(onDisk, schema) {
			return oops.Code("SCHEMA_STALE").With("path", *out).
				Errorf("%s is out of date; run gen-schema", *out)
		}
		fmt.Fprintf(stdout, "%s is up to date\n", *out)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o750); err != nil {
		return oops.Code("SCHEMA_WRITE_FAILED").With("path", *out).Wrap(err)
	}
	if err := os.WriteFile(*out, schema, 0o600); err != nil {
		return oops.Code("SCHEMA_WRITE_FAILED").With("path", *out).Wrap(err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return nil
}
