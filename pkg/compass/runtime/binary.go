// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"io"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GetCompassModuleFunc is the name of the Binary function that materializes an ExecutionModule.
const GetCompassModuleFunc = "get_compass_module"

// Binary holds a Program without opening a session for it, so it can be stored, copied or forwarded to another
// process cheaply. It never executes anything itself: use Materialize to get an ExecutionModule.
type Binary struct {
	program Program
	opts    []Option
}

var _ Module = (*Binary)(nil)

// NewBinary returns a Binary module with a copy of the program.
//
// The options are used by Materialize, when it is called through the "get_compass_module" function.
func NewBinary(program Program, opts ...Option) *Binary {
	return &Binary{program: program.Clone(), opts: opts}
}

// Program returns a copy of the program.
func (b *Binary) Program() Program { return b.program.Clone() }

// Materialize opens a new session for the program. Each call returns an independent ExecutionModule.
// opts are appended to the options given to NewBinary or LoadBinary.
func (b *Binary) Materialize(opts ...Option) (*ExecutionModule, error) {
	allOpts := append(append([]Option{}, b.opts...), opts...)
	m, err := New(b.program, allOpts...)
	if err != nil {
		return nil, errors.WithMessagef(err, "materializing %s", b.program)
	}
	klog.V(1).Infof("materialized %s", b.program)
	return m, nil
}

// TypeKey implements Module.
func (b *Binary) TypeKey() string { return BinaryTypeKey }

// PropertyMask implements Module.
func (b *Binary) PropertyMask() PropertyMask { return BinarySerializable | Runnable }

// SaveToBinary implements Module. The layout is the same as the one of ExecutionModule.
func (b *Binary) SaveToBinary(w io.Writer) error {
	return writeProgram(w, b.program)
}

// GetFunction implements Module. The only function is "get_compass_module", which takes no arguments and returns
// a newly materialized *ExecutionModule, owned by the caller.
func (b *Binary) GetFunction(name string) (*Function, bool) {
	if name != GetCompassModuleFunc {
		return nil, false
	}
	return NewFunction(name, func(args ...any) (any, error) {
		if len(args) != 0 {
			return nil, compass.ContractViolationf("%s takes no arguments, got %d", GetCompassModuleFunc, len(args))
		}
		return b.Materialize()
	}), true
}

// LoadBinary reads a Binary written by SaveToBinary. It doesn't open any session.
func LoadBinary(r io.Reader, opts ...Option) (*Binary, error) {
	program, err := readProgram(r)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading %s", BinaryTypeKey)
	}
	return &Binary{program: program, opts: opts}, nil
}
