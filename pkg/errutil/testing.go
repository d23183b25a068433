// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package errutil

import (
	"slices"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireOops stops the test unless err carries an oops error.
func requireOops(tb testing.TB, err error) oops.OopsError {
	tb.Helper()
	require.Error(tb, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(tb, ok, "want an oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode checks the deepest oops code in err's chain, the same one
// LogError reports.
func AssertErrorCode(tb testing.TB, err error, code string) {
	tb.Helper()
	requireOops(tb, err)
	assert.Equal(tb, code, Code(err), "error: %v", err)
}

// AssertErrorContext checks one key of err's merged oops context.
func AssertErrorContext(tb testing.TB, err error, key string, value any) {
	tb.Helper()
	ctx := requireOops(tb, err).Context()
	got, ok := ctx[key]
	if !ok {
		keys := make([]string, 0, len(ctx))
		for k := range ctx {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		assert.Fail(tb, "missing error context key", "key %q not in %v", key, keys)
		return
	}
	assert.Equal(tb, value, got, "context %q", key)
}

// AssertNotInError fails if secret shows up in err's message or in any
// string context value. Passwords and session IDs must never reach logs.
func AssertNotInError(tb testing.TB, err error, secret string) {
	tb.Helper()
	require.Error(tb, err)
	assert.NotContains(tb, err.Error(), secret)
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return
	}
	for key, v := range oopsErr.Context() {
		if s, isString := v.(string); isString {
			assert.NotContains(tb, s, secret, "context %q leaks secret", key)
		}
	}
}
