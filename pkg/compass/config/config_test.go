// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvWorkDir, dir)
	t.Setenv(EnvDriver, "sim:trace")
	t.Setenv(EnvDump, "true")
	t.Setenv(EnvProfile, "0")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.WorkDir)
	assert.Equal(t, "sim:trace", cfg.Driver)
	assert.True(t, cfg.Dump)
	assert.False(t, cfg.Profile)

	t.Setenv(EnvDump, "maybe")
	_, err = FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvDump)
}

func TestDefaults(t *testing.T) {
	t.Setenv(EnvWorkDir, "")
	t.Setenv(EnvDriver, "")
	t.Setenv(EnvDump, "")
	t.Setenv(EnvProfile, "")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(os.TempDir(), "compass"), cfg.WorkDir)
	assert.Empty(t, cfg.Driver)
	assert.False(t, cfg.Dump)

	SetGlobal(nil)
	defer SetGlobal(nil)
	assert.Equal(t, cfg.WorkDir, Global().WorkDir)
	custom := &Config{WorkDir: "/somewhere"}
	SetGlobal(custom)
	assert.Same(t, custom, Global())
}

func TestDirectories(t *testing.T) {
	cfg := &Config{WorkDir: t.TempDir()}
	assert.Equal(t, filepath.Join(cfg.WorkDir, "runtime", "main"), cfg.RuntimeWorkDir("main"))
	assert.Equal(t, filepath.Join(cfg.WorkDir, "dump", "main"), cfg.DumpDir("main"))

	dir1, err := cfg.NewSessionDir("main")
	require.NoError(t, err)
	dir2, err := cfg.NewSessionDir("main")
	require.NoError(t, err)
	assert.NotEqual(t, dir1, dir2)
	assert.Equal(t, cfg.RuntimeWorkDir("main"), filepath.Dir(dir1))
	info, err := os.Stat(dir1)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	cloned := cfg.Clone()
	cloned.Dump = true
	assert.False(t, cfg.Dump)
}
