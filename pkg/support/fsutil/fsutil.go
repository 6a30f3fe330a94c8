// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the file system.
package fsutil

import (
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It returns an error if `dir` has an unknown user or some other filesystem error (e.g: `~unknown/...`)
func ReplaceTildeInDir(dir string) (string, error) {
	if len(dir) == 0 || dir[0] != '~' {
		return dir, nil
	}
	var userName string
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		sepIdx := strings.IndexRune(dir, '/')
		if sepIdx == -1 {
			userName = dir[1:]
		} else {
			userName = dir[1:sepIdx]
		}
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	return path.Join(usr.HomeDir, dir[1+len(userName):]), nil
}

// AbsPath expands "~" and environment variables in p, and makes it absolute.
// Relative paths are taken relative to baseDir, or to the current directory if baseDir is empty.
func AbsPath(p, baseDir string) (string, error) {
	if p == "" {
		return "", nil
	}
	p, err := ReplaceTildeInDir(os.ExpandEnv(p))
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if baseDir == "" {
		baseDir, err = os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "failed to get current directory")
		}
	}
	return filepath.Join(baseDir, p), nil
}

// EnsureDir creates dir and its parents if they don't exist yet.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", dir)
	}
	return nil
}

// SaveBinaryToFile writes data to fileName, creating or truncating it.
func SaveBinaryToFile(fileName string, data []byte) error {
	if err := os.WriteFile(fileName, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %d bytes to %q", len(data), fileName)
	}
	return nil
}
