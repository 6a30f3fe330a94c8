// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"sync/atomic"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Function is a named operation of a Module, returned by Module.GetFunction.
//
// A Function of an ExecutionModule keeps the module's session alive until Release is called, even if the module
// itself is finalized.
type Function struct {
	name string

	// module and op are set for ExecutionModule operations.
	module *ExecutionModule
	op     OpType

	// fn is set for functions of other modules.
	fn func(args ...any) (any, error)

	released atomic.Bool
}

// NewFunction returns a Function that calls fn. It is used by modules that don't hold a session.
func NewFunction(name string, fn func(args ...any) (any, error)) *Function {
	return &Function{name: name, fn: fn}
}

// Name of the function, as given to GetFunction.
func (f *Function) Name() string { return f.name }

// OpType of the function, or OpTypeInvalid if it is not an ExecutionModule operation.
func (f *Function) OpType() OpType { return f.op }

// Release the function. For ExecutionModule functions, this drops the function's reference to the session.
// It is safe to call more than once.
func (f *Function) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.module != nil {
		f.module.handle.drop()
	}
}

// Call the function with the given arguments.
//
// For ExecutionModule operations the arguments are *tensors.Tensor values, except for the leading int counts of
// "unrestrict_run" and the (int, bool) arguments of "compass_get_param_info". The result is nil for most
// operations, a params.ParamInfo for "compass_get_param_info", and for "compass_dynamic_run" a *tensors.Tensor if
// the program has one output, or a []*tensors.Tensor otherwise.
//
// Panics raised while calling the driver are returned as compass.ErrSessionFailure errors.
func (f *Function) Call(args ...any) (result any, err error) {
	if f.released.Load() {
		return nil, compass.ContractViolationf("function %q called after Release", f.name)
	}
	var callErr error
	panicErr := exceptions.TryCatch[error](func() {
		if f.fn != nil {
			result, callErr = f.fn(args...)
			return
		}
		result, callErr = f.module.dispatch(f.op, args)
	})
	if panicErr != nil {
		klog.Errorf("function %q panicked: %+v", f.name, panicErr)
		return nil, compass.SessionFailure(panicErr, "function %q panicked", f.name)
	}
	return result, callErr
}

// Functions lists the names accepted by GetFunction, excluding the function name alias.
func (m *ExecutionModule) Functions() []string {
	values := DispatchOps()
	names := make([]string, len(values))
	for ii, op := range values {
		names[ii] = op.String()
	}
	return names
}

// GetFunction implements Module. It resolves the name to its OpType once: the program's function name is an
// alias for OpTypeRun ("compass_run").
//
// It returns false if the name is unknown, or if the module's session was already released.
func (m *ExecutionModule) GetFunction(name string) (*Function, bool) {
	op, found := ParseOpType(name, m.program.FuncName)
	if !found {
		return nil, false
	}
	if m.handle == nil || !m.handle.acquire() {
		klog.Warningf("GetFunction(%q) on finalized module %q", name, m.program.FuncName)
		return nil, false
	}
	return &Function{name: name, module: m, op: op}, true
}

// dispatch an operation with untyped arguments to the typed API.
func (m *ExecutionModule) dispatch(op OpType, args []any) (any, error) {
	switch op {
	case OpTypeSetInputs:
		ts, err := tensorArgs(op, args, 0)
		if err != nil {
			return nil, err
		}
		return nil, m.SetInputs(ts...)
	case OpTypeSetOutputs:
		ts, err := tensorArgs(op, args, 0)
		if err != nil {
			return nil, err
		}
		return nil, m.SetOutputs(ts...)
	case OpTypeExecute:
		return nil, m.Execute()
	case OpTypeGetOutputs:
		ts, err := tensorArgs(op, args, 0)
		if err != nil {
			return nil, err
		}
		return nil, m.GetOutputs(ts...)
	case OpTypeGetParamInfo:
		if len(args) != 2 {
			return nil, compass.ContractViolationf("%s takes (index int, isInput bool), got %d arguments", op, len(args))
		}
		index, ok := args[0].(int)
		if !ok {
			return nil, compass.ContractViolationf("%s: index must be an int, got %T", op, args[0])
		}
		isInput, ok := args[1].(bool)
		if !ok {
			return nil, compass.ContractViolationf("%s: isInput must be a bool, got %T", op, args[1])
		}
		return m.ParamInfo(index, isInput)
	case OpTypeRun:
		ts, err := tensorArgs(op, args, 0)
		if err != nil {
			return nil, err
		}
		return nil, m.Run(ts...)
	case OpTypeUnrestrictedRun:
		if len(args) < 2 {
			return nil, compass.ContractViolationf("%s takes the number of inputs and outputs, then the tensors, got %d arguments",
				op, len(args))
		}
		numInputs, ok1 := args[0].(int)
		numOutputs, ok2 := args[1].(int)
		if !ok1 || !ok2 {
			return nil, compass.ContractViolationf("%s: the first 2 arguments must be ints, got %T and %T", op, args[0], args[1])
		}
		ts, err := tensorArgs(op, args, 2)
		if err != nil {
			return nil, err
		}
		return nil, m.UnrestrictedRun(numInputs, numOutputs, ts...)
	case OpTypeSetInputShared, OpTypeMarkOutputShared:
		ts, err := tensorArgs(op, args, 0)
		if err != nil {
			return nil, err
		}
		if len(ts) != 1 {
			return nil, compass.ContractViolationf("%s takes one descriptor tensor, got %d arguments", op, len(ts))
		}
		if op == OpTypeSetInputShared {
			return nil, m.SetInputShared(ts[0])
		}
		return nil, m.MarkOutputShared(ts[0])
	case OpTypeDynamicRun:
		ts, err := tensorArgs(op, args, 0)
		if err != nil {
			return nil, err
		}
		outputs, err := m.DynamicRun(ts...)
		if err != nil {
			return nil, err
		}
		if len(outputs) == 1 {
			return outputs[0], nil
		}
		return outputs, nil
	default:
		exceptions.Panicf("unknown OpType %s for ExecutionModule", op)
		return nil, nil
	}
}

// tensorArgs converts args[start:] to tensors.
func tensorArgs(op OpType, args []any, start int) ([]*tensors.Tensor, error) {
	ts := make([]*tensors.Tensor, 0, len(args)-start)
	for ii := start; ii < len(args); ii++ {
		t, ok := args[ii].(*tensors.Tensor)
		if !ok {
			return nil, compass.ContractViolationf("%s: argument #%d must be a *tensors.Tensor, got %T", op, ii, args[ii])
		}
		ts = append(ts, t)
	}
	return ts, nil
}
