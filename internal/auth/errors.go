// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested identity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when an identity with the same email already exists.
var ErrEmailTaken = errors.New("email already registered")
