// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package config holds the runtime configuration of the Compass execution adapter.
//
// The configuration is read from the environment (see FromEnv) and can be overridden programmatically
// with SetGlobal. Parsing of configuration files is left to the host application.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gomlx/compass/pkg/support/fsutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Environment variables read by FromEnv.
const (
	// EnvWorkDir is the root directory for the runtime scratch files. Defaults to "<os.TempDir()>/compass".
	EnvWorkDir = "AIPU_COMPASS_WORK_DIR"

	// EnvDriver selects the driver and its options, in the format "<driver>[:<options>]".
	// If not set, the first registered driver is used.
	EnvDriver = "AIPU_COMPASS_DRIVER"

	// EnvDump enables the capture of the input and output tensors of every run.
	EnvDump = "AIPU_TVM_RUNTIME_DUMP"

	// EnvProfile enables the profiling data dumped by the sessions after every run.
	EnvProfile = "AIPU_COMPASS_PROFILE"
)

// Config of the execution adapter.
type Config struct {
	// WorkDir is the root of the directories used by sessions and by the tensor capture.
	WorkDir string

	// Driver configuration: "<driver>[:<options>]". Empty selects the first registered driver.
	Driver string

	// Dump enables capturing input/output tensors.
	Dump bool

	// Profile enables profiling data.
	Profile bool
}

// DefaultWorkDir returns the work directory used when none is configured.
func DefaultWorkDir() string {
	return filepath.Join(os.TempDir(), "compass")
}

// FromEnv returns a Config read from the environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		WorkDir: DefaultWorkDir(),
		Driver:  os.Getenv(EnvDriver),
	}
	if dir, found := os.LookupEnv(EnvWorkDir); found && dir != "" {
		var err error
		cfg.WorkDir, err = fsutil.AbsPath(dir, "")
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid $%s=%q", EnvWorkDir, dir)
		}
	}
	var err error
	if cfg.Dump, err = envBool(EnvDump); err != nil {
		return nil, err
	}
	if cfg.Profile, err = envBool(EnvProfile); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envBool(name string) (bool, error) {
	value, found := os.LookupEnv(name)
	if !found || value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Wrapf(err, "invalid boolean value for $%s=%q", name, value)
	}
	return b, nil
}

var (
	muGlobal sync.Mutex
	global   *Config
)

// Global returns the process-wide configuration. It is read from the environment on first use; if the
// environment is invalid, the error is logged and the defaults are used.
func Global() *Config {
	muGlobal.Lock()
	defer muGlobal.Unlock()
	if global == nil {
		cfg, err := FromEnv()
		if err != nil {
			klog.Errorf("compass configuration: %+v", err)
			cfg = &Config{WorkDir: DefaultWorkDir()}
		}
		global = cfg
	}
	return global
}

// SetGlobal replaces the process-wide configuration. A nil cfg resets it, so it is read again from the
// environment on the next call to Global.
func SetGlobal(cfg *Config) {
	muGlobal.Lock()
	defer muGlobal.Unlock()
	global = cfg
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	cloned := *c
	return &cloned
}

// RuntimeWorkDir returns the directory where the runtime keeps the files of the program named funcName.
func (c *Config) RuntimeWorkDir(funcName string) string {
	return filepath.Join(c.WorkDir, "runtime", funcName)
}

// DumpDir returns the directory where the captured tensors of the program named funcName are written.
func (c *Config) DumpDir(funcName string) string {
	return filepath.Join(c.WorkDir, "dump", funcName)
}

// NewSessionDir creates and returns a new unique directory for one session of the program named funcName.
func (c *Config) NewSessionDir(funcName string) (string, error) {
	dir := filepath.Join(c.RuntimeWorkDir(funcName), uuid.NewString())
	if err := fsutil.EnsureDir(dir); err != nil {
		return "", errors.WithMessagef(err, "failed to create session directory for %q", funcName)
	}
	return dir, nil
}
