// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package driver

import (
	"testing"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/compass/config"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nopSession embeds a nil Session: only the constructor path is exercised here.
type nopSession struct {
	Session
	opts Options
}

func TestRegistry(t *testing.T) {
	cfg := &config.Config{WorkDir: t.TempDir()}
	_, err := New(cfg, Options{FuncName: "main"})
	require.ErrorIs(t, err, compass.ErrSessionFailure)

	Register("first", func(opts Options) (Session, error) { return &nopSession{opts: opts}, nil })
	Register("failing", func(opts Options) (Session, error) { return nil, errors.New("no device") })
	assert.Equal(t, []string{"failing", "first"}, List())

	name, options := ParseConfig("")
	assert.Equal(t, "first", name)
	assert.Empty(t, options)
	name, options = ParseConfig("failing:a=1,b")
	assert.Equal(t, "failing", name)
	assert.Equal(t, "a=1,b", options)

	s, err := New(cfg, Options{FuncName: "main", Target: "X1"})
	require.NoError(t, err)
	opts := s.(*nopSession).opts
	assert.Equal(t, "main", opts.FuncName)
	assert.DirExists(t, opts.WorkDir)
	assert.Contains(t, opts.WorkDir, cfg.RuntimeWorkDir("main"))

	cfg.Driver = "first:verbose"
	cfg.Profile = true
	s, err = New(cfg, Options{FuncName: "main", WorkDir: "/fixed"})
	require.NoError(t, err)
	opts = s.(*nopSession).opts
	assert.Equal(t, "verbose", opts.Config)
	assert.Equal(t, "/fixed", opts.WorkDir)
	assert.True(t, opts.Profile)

	cfg.Driver = "failing"
	_, err = New(cfg, Options{FuncName: "main"})
	require.ErrorIs(t, err, compass.ErrSessionFailure)
	assert.Contains(t, err.Error(), "no device")

	cfg.Driver = "missing"
	_, err = New(cfg, Options{FuncName: "main"})
	require.ErrorIs(t, err, compass.ErrSessionFailure)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestSentinels(t *testing.T) {
	assert.False(t, IsSharedFD(0))
	assert.False(t, IsSharedFD(-3))
	assert.True(t, IsSharedFD(5))
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), NotSharedOutputPA)
}
