// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package params defines ParamInfo, the contract of one positional argument of an accelerator program, and the
// validation of call arguments against those contracts.
//
// Contracts are never supplied by users: they are derived from a live driver session (see Derive), and replaced
// as a whole whenever the session's shapes change.
package params

import (
	"fmt"
	"slices"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/shapes"
	"github.com/gomlx/compass/pkg/core/tensors"
	"k8s.io/klog/v2"
)

// ParamInfo describes one input or output of an accelerator program.
type ParamInfo struct {
	// DataType of the elements: type code, bits and lanes.
	DataType dtypes.DataType

	// Size in bytes of the whole tensor.
	Size int

	// Shape holds the dimensions, as last reported by the session.
	Shape []int
}

// New returns a ParamInfo with the Size computed from the dataType and the shape.
func New(dataType dtypes.DataType, shape ...int) ParamInfo {
	return ParamInfo{
		DataType: dataType,
		Size:     dataType.ByteSize(shapes.Size(shape)),
		Shape:    slices.Clone(shape),
	}
}

// Clone returns a deep copy of p.
func (p ParamInfo) Clone() ParamInfo {
	p.Shape = slices.Clone(p.Shape)
	return p
}

// Equal returns whether both contracts are the same.
func (p ParamInfo) Equal(other ParamInfo) bool {
	return p.DataType == other.DataType && p.Size == other.Size && slices.Equal(p.Shape, other.Shape)
}

// Consistent returns whether Size matches the number of elements in Shape times the element size.
func (p ParamInfo) Consistent() bool {
	return p.Size == p.DataType.ByteSize(shapes.Size(p.Shape))
}

// String implements fmt.Stringer.
func (p ParamInfo) String() string {
	return fmt.Sprintf("%s%v (%d bytes)", p.DataType, p.Shape, p.Size)
}

// CloneAll returns a deep copy of a list of contracts.
func CloneAll(list []ParamInfo) []ParamInfo {
	if list == nil {
		return nil
	}
	cloned := make([]ParamInfo, len(list))
	for ii, p := range list {
		cloned[ii] = p.Clone()
	}
	return cloned
}

// Kind of argument list being checked: it is used in error messages.
type Kind string

const (
	Input  Kind = "input"
	Output Kind = "output"
)

// KindOf returns Input if isInput, Output otherwise.
func KindOf(isInput bool) Kind {
	if isInput {
		return Input
	}
	return Output
}

// Source is anything that can report the contracts of its inputs or outputs, usually a driver.Session.
type Source interface {
	ParamInfo(isInput bool) ([]ParamInfo, error)
}

// Derive queries source for the contracts of its inputs (isInput=true) or outputs.
//
// The returned list is owned by the caller. Errors from source are returned wrapped as compass.ErrSessionFailure.
func Derive(source Source, isInput bool) ([]ParamInfo, error) {
	list, err := source.ParamInfo(isInput)
	if err != nil {
		return nil, compass.SessionFailure(err, "failed to query %s parameters", KindOf(isInput))
	}
	if klog.V(1).Enabled() {
		klog.Infof("derived %d %s parameters: %v", len(list), KindOf(isInput), list)
	}
	return CloneAll(list), nil
}

// ValidateCount checks only that there is one argument per contract.
func ValidateCount(kind Kind, args []*tensors.Tensor, contracts []ParamInfo) error {
	if len(args) != len(contracts) {
		return compass.ContractViolationf("got %d %s arguments, but program expects %d", len(args), kind, len(contracts))
	}
	return nil
}

// ValidateDTypes checks the count and, positionally, that the element type of each argument matches its contract.
// Byte sizes are not checked.
func ValidateDTypes(kind Kind, args []*tensors.Tensor, contracts []ParamInfo) error {
	if err := ValidateCount(kind, args, contracts); err != nil {
		return err
	}
	for ii, arg := range args {
		if got, want := arg.DataType(), contracts[ii].DataType; got != want {
			return compass.ContractViolationf("%s #%d: wanted element type %s, got %s", kind, ii, want, got)
		}
	}
	return nil
}

// Validate checks the count and, positionally, that each argument matches the element type and byte size of its
// contract. The first mismatch is reported.
func Validate(kind Kind, args []*tensors.Tensor, contracts []ParamInfo) error {
	if err := ValidateCount(kind, args, contracts); err != nil {
		return err
	}
	for ii, arg := range args {
		want := contracts[ii]
		if got := arg.DataType(); got != want.DataType {
			return compass.ContractViolationf("%s #%d: wanted element type %s, got %s", kind, ii, want.DataType, got)
		}
		if got := arg.ByteSize(); got != want.Size {
			return compass.ContractViolationf("%s #%d: wanted %d bytes, got %d bytes (%s)", kind, ii, want.Size, got, arg.Shape())
		}
	}
	return nil
}
