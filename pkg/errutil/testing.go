// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err carries the given oops code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, Code(err), "error: %v", err)
}

// AssertCoded asserts that err wraps sentinel and carries code, the shape
// store implementations must return for ErrNotFound and ErrDuplicateEmail.
func AssertCoded(t *testing.T, err, sentinel error, code string) {
	t.Helper()
	require.ErrorIs(t, err, sentinel)
	AssertErrorCode(t, err, code)
}

// AssertErrorContext asserts that err is an oops error with the given context key/value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := oopsContext(t, err)
	require.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertNoContextValue asserts that no context entry of err holds value.
// Used to check that an error is safe to log.
func AssertNoContextValue(t *testing.T, err error, value string) {
	t.Helper()
	for key, v := range oopsContext(t, err) {
		assert.NotEqual(t, value, v, "context key %q leaks value", key)
	}
	assert.NotContains(t, err.Error(), value)
}

func oopsContext(t *testing.T, err error) map[string]any {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	return oopsErr.Context()
}
