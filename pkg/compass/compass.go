// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package compass holds what is shared by all packages of the Compass accelerator execution adapter:
// mostly the error taxonomy.
//
// The adapter lets a host graph runtime invoke a precompiled accelerator program as one opaque call:
//
//   - github.com/gomlx/compass/pkg/compass/runtime owns the program, validates arguments against the
//     parameter contracts reported by the driver, and exposes the named operations.
//   - github.com/gomlx/compass/pkg/compass/driver defines the session a driver must implement; the
//     sub-package sim provides a software simulator.
//   - github.com/gomlx/compass/pkg/compass/codegen lowers the same program to C source for baremetal targets.
//
// Every error returned by these packages wraps one of the sentinel errors below, so callers can classify
// failures with errors.Is.
package compass

import (
	"github.com/pkg/errors"
)

var (
	// ErrContractViolation is returned when the count, element type or byte size of arguments disagree with the
	// parameter contracts, or when an argument has an unsupported layout.
	ErrContractViolation = errors.New("contract violation")

	// ErrSessionFailure is returned when the accelerator session rejects a binding or an execution.
	ErrSessionFailure = errors.New("accelerator session failure")

	// ErrSerialization is returned for truncated or malformed persisted modules, and for generated content that
	// can't be saved.
	ErrSerialization = errors.New("serialization failure")

	// ErrRangeViolation is returned when a parameter index is out of range.
	ErrRangeViolation = errors.New("index out of range")
)

// ContractViolationf returns an error wrapping ErrContractViolation with the formatted message.
func ContractViolationf(format string, args ...any) error {
	return errors.Wrapf(ErrContractViolation, format, args...)
}

// RangeViolationf returns an error wrapping ErrRangeViolation with the formatted message.
func RangeViolationf(format string, args ...any) error {
	return errors.Wrapf(ErrRangeViolation, format, args...)
}

// Serializationf returns an error wrapping ErrSerialization with the formatted message.
func Serializationf(format string, args ...any) error {
	return errors.Wrapf(ErrSerialization, format, args...)
}

// SessionFailure wraps a driver error, so it is classified as ErrSessionFailure, while keeping the driver
// error accessible with errors.Is/As. It returns nil if err is nil.
func SessionFailure(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.WithMessagef(&classified{kind: ErrSessionFailure, cause: err}, format, args...)
}

// Serialization wraps err so it is classified as ErrSerialization. It returns nil if err is nil.
func Serialization(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.WithMessagef(&classified{kind: ErrSerialization, cause: err}, format, args...)
}

// classified tags an error with one of the sentinels, without losing the original cause.
type classified struct {
	kind  error
	cause error
}

func (c *classified) Error() string {
	return c.kind.Error() + ": " + c.cause.Error()
}

// Is implements the errors.Is protocol: it matches its kind, and the cause is reached through Unwrap.
func (c *classified) Is(target error) bool { return target == c.kind }

// Unwrap returns the original cause.
func (c *classified) Unwrap() error { return c.cause }
