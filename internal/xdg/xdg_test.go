// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/pkg/errutil"
)

func TestConfigDir(t *testing.T) {
	t.Run("env var", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		assert.Equal(t, "/custom/config/quill", ConfigDir())
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/testuser")
		assert.Equal(t, "/home/testuser/.config/quill", ConfigDir())
	})
}

func TestDefaultConfigFile(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	path, err := DefaultConfigFile()
	require.NoError(t, err)
	assert.Empty(t, path, "missing file is not an error")

	want := filepath.Join(base, "quill", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(want), 0o700))
	require.NoError(t, os.WriteFile(want, []byte("log:\n  level: debug\n"), 0o600))

	path, err = DefaultConfigFile()
	require.NoError(t, err)
	assert.Equal(t, want, path)
}

func TestDefaultConfigFile_Directory(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	require.NoError(t, os.MkdirAll(filepath.Join(base, "quill", "config.yaml"), 0o700))

	_, err := DefaultConfigFile()
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}
