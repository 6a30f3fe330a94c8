// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sim

import (
	"bytes"
	"encoding/gob"
	"slices"

	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// Magic identifies an encoded simulator program.
const Magic = "compass-sim/v1"

// Kernel names understood by the simulator.
const (
	// KernelIdentity copies input i to output i.
	KernelIdentity = "identity"

	// KernelSum adds, elementwise, all inputs into output 0. Only float32 and float16 are supported.
	KernelSum = "sum"

	// KernelReverse copies input i to output i with the order of the elements reversed.
	KernelReverse = "reverse"
)

// Tensor declares one parameter of a simulated program.
type Tensor struct {
	DataType dtypes.DataType
	Shape    []int
}

// ParamInfo returns the contract of the parameter.
func (t Tensor) ParamInfo() params.ParamInfo {
	return params.New(t.DataType, t.Shape...)
}

// Program is the "compiled" binary understood by the simulator.
type Program struct {
	Magic           string
	Inputs, Outputs []Tensor
	Kernel          string
}

// NewProgram returns a Program with the given kernel and parameters.
func NewProgram(kernel string, inputs, outputs []Tensor) *Program {
	return &Program{Magic: Magic, Inputs: slices.Clone(inputs), Outputs: slices.Clone(outputs), Kernel: kernel}
}

// Validate checks that the program can be run by the simulator.
func (p *Program) Validate() error {
	if p.Magic != Magic {
		return errors.Errorf("not a simulator program: magic %q, wanted %q", p.Magic, Magic)
	}
	for _, list := range [][]Tensor{p.Inputs, p.Outputs} {
		for ii, t := range list {
			if t.DataType.DType() == dtypes.InvalidDType || t.DataType.Lanes == 0 {
				return errors.Errorf("parameter #%d has invalid element type %s", ii, t.DataType)
			}
			for _, dim := range t.Shape {
				if dim < 0 {
					return errors.Errorf("parameter #%d has invalid shape %v", ii, t.Shape)
				}
			}
		}
	}
	switch p.Kernel {
	case KernelIdentity, KernelReverse:
		if len(p.Inputs) != len(p.Outputs) {
			return errors.Errorf("kernel %q requires as many outputs as inputs, got %d inputs and %d outputs",
				p.Kernel, len(p.Inputs), len(p.Outputs))
		}
	case KernelSum:
		if len(p.Outputs) != 1 || len(p.Inputs) == 0 {
			return errors.Errorf("kernel %q requires at least one input and exactly one output", p.Kernel)
		}
	default:
		return errors.Errorf("unknown kernel %q", p.Kernel)
	}
	return nil
}

// Encode the program into a binary blob.
func Encode(p *Program) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, errors.Wrapf(err, "failed to encode simulator program")
	}
	return buf.Bytes(), nil
}

// MustEncode is like Encode, but panics on error.
func MustEncode(p *Program) []byte {
	data, err := Encode(p)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode a binary blob created by Encode, and validates it.
func Decode(data []byte) (*Program, error) {
	p := &Program{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(p); err != nil {
		return nil, errors.Wrapf(err, "failed to decode simulator program (%d bytes)", len(data))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
