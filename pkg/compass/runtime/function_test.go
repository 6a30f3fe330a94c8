// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"testing"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/compass/driver/drivertest"
	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpTypeNames(t *testing.T) {
	want := map[OpType]string{
		OpTypeSetInputs:        "compass_set_inputs",
		OpTypeSetOutputs:       "compass_set_outputs",
		OpTypeExecute:          "compass_execute",
		OpTypeGetOutputs:       "compass_get_outputs",
		OpTypeGetParamInfo:     "compass_get_param_info",
		OpTypeRun:              "compass_run",
		OpTypeUnrestrictedRun:  "unrestrict_run",
		OpTypeSetInputShared:   "compass_set_input_shared",
		OpTypeMarkOutputShared: "compass_mark_output_shared",
		OpTypeDynamicRun:       "compass_dynamic_run",
	}
	require.Len(t, DispatchOps(), len(want))
	for op, name := range want {
		assert.Equal(t, name, op.String())
		parsed, found := ParseOpType(name, "my_func")
		require.True(t, found)
		assert.Equal(t, op, parsed)
	}
	assert.Equal(t, "OpType(99)", OpType(99).String())
	assert.False(t, OpTypeInvalid.IsDispatchable())
	assert.False(t, OpTypeLast.IsDispatchable())
	for _, name := range []string{OpTypeInvalid.String(), OpTypeLast.String(), "Invalid", "COMPASS_RUN", "Compass_Execute"} {
		_, found := ParseOpType(name, "my_func")
		assert.False(t, found, "name %q must not resolve", name)
	}

	op, found := ParseOpType("my_func", "my_func")
	require.True(t, found)
	assert.Equal(t, OpTypeRun, op)
	_, found = ParseOpType("compass_fly", "my_func")
	assert.False(t, found)
	_, found = ParseOpType("", "")
	assert.False(t, found)
}

func TestGetFunction(t *testing.T) {
	m, session := newFakeModule(t, []params.ParamInfo{f32Param(4)}, []params.ParamInfo{f32Param(4)})
	assert.Len(t, m.Functions(), 10)

	_, found := m.GetFunction("get_func_names")
	assert.False(t, found)

	// The function name is an alias for compass_run.
	run, found := m.GetFunction("main")
	require.True(t, found)
	defer run.Release()
	assert.Equal(t, OpTypeRun, run.OpType())
	assert.Equal(t, "main", run.Name())
	result, err := run.Call(f32Zeros(4), f32Zeros(4))
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, []string{drivertest.SetInputs, drivertest.Run, drivertest.GetOutputs, drivertest.DumpProfileData},
		session.Calls)

	_, err = run.Call(f32Zeros(4), f32Zeros(2))
	require.ErrorIs(t, err, compass.ErrContractViolation)
	_, err = run.Call(f32Zeros(4), "not a tensor")
	require.ErrorIs(t, err, compass.ErrContractViolation)
}

func TestDispatch(t *testing.T) {
	m, session := newFakeModule(t, []params.ParamInfo{f32Param(4)}, []params.ParamInfo{f32Param(4), f32Param(2)})
	call := func(name string, args ...any) (any, error) {
		fn, found := m.GetFunction(name)
		require.Truef(t, found, "function %q not found", name)
		defer fn.Release()
		return fn.Call(args...)
	}

	_, err := call("compass_set_inputs", f32Zeros(4))
	require.NoError(t, err)
	_, err = call("compass_set_outputs", f32Zeros(4), f32Zeros(2))
	require.NoError(t, err)
	_, err = call("compass_execute")
	require.NoError(t, err)
	_, err = call("compass_get_outputs", f32Zeros(4), f32Zeros(2))
	require.NoError(t, err)
	assert.Equal(t, []string{drivertest.SetInputs, drivertest.SetOutputs, drivertest.Run, drivertest.GetOutputs,
		drivertest.DumpProfileData}, session.Calls)

	info, err := call("compass_get_param_info", 1, false)
	require.NoError(t, err)
	assert.Equal(t, f32Param(2), info)
	_, err = call("compass_get_param_info", 1, true)
	require.ErrorIs(t, err, compass.ErrRangeViolation)
	_, err = call("compass_get_param_info", "1", true)
	require.ErrorIs(t, err, compass.ErrContractViolation)
	_, err = call("compass_get_param_info", 0)
	require.ErrorIs(t, err, compass.ErrContractViolation)

	session.Reset()
	_, err = call("unrestrict_run", 1, 1, f32Zeros(1), f32Zeros(1))
	require.NoError(t, err)
	assert.True(t, session.Called(drivertest.Run))
	_, err = call("unrestrict_run", 1)
	require.ErrorIs(t, err, compass.ErrContractViolation)
	_, err = call("unrestrict_run", 1, 2, f32Zeros(1))
	require.ErrorIs(t, err, compass.ErrContractViolation)

	_, err = call("compass_set_input_shared", tensors.FromFlatDataAndDimensions([]int32{4}, 1))
	require.NoError(t, err)
	assert.Equal(t, []int32{4}, session.InputFDs)
	descriptor := tensors.FromFlatDataAndDimensions([]uint64{1, 1}, 2)
	_, err = call("compass_mark_output_shared", descriptor)
	require.NoError(t, err)
	assert.NotEqual(t, []uint64{1, 1}, tensors.MustCopyFlatData[uint64](descriptor))
	_, err = call("compass_mark_output_shared")
	require.ErrorIs(t, err, compass.ErrContractViolation)

	// Dynamic run with two outputs returns a list.
	result, err := call("compass_dynamic_run", f32Zeros(4))
	require.NoError(t, err)
	outputs, ok := result.([]*tensors.Tensor)
	require.True(t, ok, "got %T", result)
	assert.Len(t, outputs, 2)
}

func TestDynamicRunSingleOutput(t *testing.T) {
	m, _ := newFakeModule(t, []params.ParamInfo{f32Param(4)}, []params.ParamInfo{f32Param(4)})
	fn, found := m.GetFunction("compass_dynamic_run")
	require.True(t, found)
	defer fn.Release()
	result, err := fn.Call(f32Zeros(4))
	require.NoError(t, err)
	output, ok := result.(*tensors.Tensor)
	require.True(t, ok, "got %T", result)
	assert.Equal(t, 16, output.ByteSize())
}

func TestFunctionKeepsSessionAlive(t *testing.T) {
	session := drivertest.New([]params.ParamInfo{f32Param(1)}, []params.ParamInfo{f32Param(1)})
	m, err := New(NewProgram([]byte{1}, "main", "", ""), WithSession(session))
	require.NoError(t, err)
	execute, found := m.GetFunction("compass_execute")
	require.True(t, found)
	run, found := m.GetFunction("compass_run")
	require.True(t, found)

	m.Finalize()
	assert.Zero(t, session.NumFinalized, "functions still hold the session")
	_, err = execute.Call()
	require.NoError(t, err)

	execute.Release()
	execute.Release()
	assert.Zero(t, session.NumFinalized)
	_, err = execute.Call()
	require.ErrorIs(t, err, compass.ErrContractViolation)

	_, err = run.Call(f32Zeros(1), f32Zeros(1))
	require.NoError(t, err)
	run.Release()
	assert.Equal(t, 1, session.NumFinalized)
}

func TestFunctionRecoversPanics(t *testing.T) {
	m, session := newFakeModule(t, []params.ParamInfo{f32Param(1)}, []params.ParamInfo{f32Param(1)})
	session.Panic(drivertest.Run, errors.New("driver crashed"))
	fn, found := m.GetFunction("compass_execute")
	require.True(t, found)
	defer fn.Release()
	_, err := fn.Call()
	require.ErrorIs(t, err, compass.ErrSessionFailure)
	assert.Contains(t, err.Error(), "driver crashed")
}

func TestNewFunction(t *testing.T) {
	fn := NewFunction("answer", func(args ...any) (any, error) { return len(args), nil })
	result, err := fn.Call(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result)
	assert.Equal(t, OpTypeInvalid, fn.OpType())
	fn.Release()
	_, err = fn.Call()
	require.ErrorIs(t, err, compass.ErrContractViolation)
}
