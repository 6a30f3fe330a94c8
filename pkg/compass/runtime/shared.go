// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"slices"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/compass/driver"
	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/gomlx/compass/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// descriptorEntry is the element type of a shared buffer descriptor: int32 for file descriptors and uint64 for
// physical addresses.
type descriptorEntry interface {
	int32 | uint64
}

// withDescriptor calls fn with the entries of the descriptor, one per parameter, aliasing its storage.
func withDescriptor[T descriptorEntry](kind params.Kind, descriptor *tensors.Tensor, numParams int, fn func(entries []T) error) error {
	if descriptor.Size() != numParams {
		return compass.ContractViolationf("shared %s descriptor has %d entries, program has %d %ss",
			kind, descriptor.Size(), numParams, kind)
	}
	var fnErr error
	err := tensors.MutableFlatData(descriptor, func(flat []T) { fnErr = fn(flat) })
	if err != nil {
		return errors.Wrapf(compass.ErrContractViolation, "shared %s descriptor: %v", kind, err)
	}
	return fnErr
}

// SetInputShared registers externally owned buffers as the storage of the inputs, avoiding a copy.
//
// The element type of descriptor selects how its entries, one per input, are interpreted:
//
//   - Int32: file descriptors of OS buffers; values <= 0 mean "not shared".
//   - Uint64: physical addresses of device memory; 0 means "not shared".
//
// Any other element type is a contract violation.
func (m *ExecutionModule) SetInputShared(descriptor *tensors.Tensor) error {
	session, err := m.liveSession()
	if err != nil {
		return err
	}
	if err := checkArgs(params.Input, []*tensors.Tensor{descriptor}); err != nil {
		return err
	}
	switch descriptor.DataType() {
	case fdDataType:
		return withDescriptor(params.Input, descriptor, len(m.inputs), func(fds []int32) error {
			m.logShared(params.Input, "file descriptor", xslices.Count(fds, driver.IsSharedFD), len(fds))
			return compass.SessionFailure(session.SetInputSharedFDs(slices.Clone(fds)),
				"%q failed to set shared inputs by file descriptor", m.program.FuncName)
		})
	case paDataType:
		return withDescriptor(params.Input, descriptor, len(m.inputs), func(pas []uint64) error {
			m.logShared(params.Input, "physical address",
				xslices.Count(pas, func(pa uint64) bool { return pa != driver.NotSharedInputPA }), len(pas))
			return compass.SessionFailure(session.SetInputSharedPAs(slices.Clone(pas)),
				"%q failed to set shared inputs by physical address", m.program.FuncName)
		})
	default:
		return compass.ContractViolationf("shared input descriptor must be int32 (file descriptors) or uint64 "+
			"(physical addresses), got %s", descriptor.DataType())
	}
}

// MarkOutputShared makes the outputs be written directly into shared memory, to be consumed by the next stage of
// a pipeline without a copy.
//
// The element type of descriptor selects how its entries, one per output, are interpreted:
//
//   - Int32: file descriptors of OS buffers to write the outputs to; values <= 0 mean "not shared".
//   - Uint64: physical addresses; math.MaxUint64 means "not shared". The session allocates device memory for
//     each shared output, and writes its physical address into the descriptor, in place.
//
// Any other element type is a contract violation.
func (m *ExecutionModule) MarkOutputShared(descriptor *tensors.Tensor) error {
	session, err := m.liveSession()
	if err != nil {
		return err
	}
	if err := checkArgs(params.Output, []*tensors.Tensor{descriptor}); err != nil {
		return err
	}
	switch descriptor.DataType() {
	case fdDataType:
		return withDescriptor(params.Output, descriptor, len(m.outputs), func(fds []int32) error {
			m.logShared(params.Output, "file descriptor", xslices.Count(fds, driver.IsSharedFD), len(fds))
			return compass.SessionFailure(session.MarkOutputSharedFDs(slices.Clone(fds)),
				"%q failed to mark shared outputs by file descriptor", m.program.FuncName)
		})
	case paDataType:
		return withDescriptor(params.Output, descriptor, len(m.outputs), func(pas []uint64) error {
			m.logShared(params.Output, "physical address",
				xslices.Count(pas, func(pa uint64) bool { return pa != driver.NotSharedOutputPA }), len(pas))
			return compass.SessionFailure(session.MarkOutputSharedPAs(pas),
				"%q failed to mark shared outputs by physical address", m.program.FuncName)
		})
	default:
		return compass.ContractViolationf("shared output descriptor must be int32 (file descriptors) or uint64 "+
			"(physical addresses), got %s", descriptor.DataType())
	}
}

func (m *ExecutionModule) logShared(kind params.Kind, by string, numShared, numParams int) {
	klog.V(2).Infof("%q: sharing %d of %d %ss by %s", m.program.FuncName, numShared, numParams, kind, by)
}

var (
	fdDataType = dtypes.Int32.DataType()
	paDataType = dtypes.Uint64.DataType()
)
