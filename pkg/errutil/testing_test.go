// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package errutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"

	"github.com/quillnotes/quill/pkg/errutil"
)

var errMissing = errors.New("missing")

func TestAssertErrorCode(t *testing.T) {
	errutil.AssertErrorCode(t, oops.Code("MY_CODE").Errorf("test error"), "MY_CODE")
	errutil.AssertErrorCode(t, fmt.Errorf("outer: %w", oops.Code("MY_CODE").Errorf("inner")), "MY_CODE")
}

func TestAssertCoded(t *testing.T) {
	err := oops.Code("AUTH_NOT_FOUND").With("entity", "user").Wrap(errMissing)
	errutil.AssertCoded(t, err, errMissing, "AUTH_NOT_FOUND")
	errutil.AssertErrorContext(t, err, "entity", "user")
}

func TestAssertNoContextValue(t *testing.T) {
	err := oops.Code("AUTH_NOT_FOUND").With("lookup", "email").Wrap(errMissing)
	errutil.AssertNoContextValue(t, err, "alice@example.com")
}
