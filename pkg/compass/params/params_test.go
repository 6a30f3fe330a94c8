// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package params

import (
	"testing"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	inputs, outputs []ParamInfo
	err             error
}

func (s *fixedSource) ParamInfo(isInput bool) ([]ParamInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	if isInput {
		return s.inputs, nil
	}
	return s.outputs, nil
}

func TestNew(t *testing.T) {
	p := New(dtypes.Float32.DataType(), 2, 2)
	assert.Equal(t, 16, p.Size)
	assert.True(t, p.Consistent())
	assert.Equal(t, "float32[2 2] (16 bytes)", p.String())

	v := New(dtypes.Make(dtypes.Int8, 4), 3)
	assert.Equal(t, 12, v.Size)

	q := p.Clone()
	q.Shape[0] = 4
	assert.Equal(t, 2, p.Shape[0])
	assert.False(t, p.Equal(q))
	q.Size = 32
	assert.True(t, q.Consistent())
}

func TestDerive(t *testing.T) {
	src := &fixedSource{
		inputs:  []ParamInfo{New(dtypes.Float32.DataType(), 4)},
		outputs: []ParamInfo{New(dtypes.Int32.DataType(), 2), New(dtypes.Uint8.DataType(), 3)},
	}
	inputs, err := Derive(src, true)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	inputs[0].Shape[0] = 100
	assert.Equal(t, 4, src.inputs[0].Shape[0], "derived contracts must be a copy")

	outputs, err := Derive(src, false)
	require.NoError(t, err)
	assert.Len(t, outputs, 2)

	src.err = errors.New("device unplugged")
	_, err = Derive(src, true)
	require.ErrorIs(t, err, compass.ErrSessionFailure)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestValidate(t *testing.T) {
	contracts := []ParamInfo{New(dtypes.Float32.DataType(), 4), New(dtypes.Int8.DataType(), 2)}
	good := []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 4),
		tensors.FromFlatDataAndDimensions([]int8{1, 2}, 2),
	}
	require.NoError(t, Validate(Input, good, contracts))

	// Same byte size and type, different shape: still valid.
	reshaped := []*tensors.Tensor{tensors.FromScalarAndDimensions(float32(0), 2, 2), good[1]}
	require.NoError(t, Validate(Input, reshaped, contracts))

	// Count is checked first.
	err := Validate(Output, good[:1], contracts)
	require.ErrorIs(t, err, compass.ErrContractViolation)
	assert.Contains(t, err.Error(), "got 1 output arguments, but program expects 2")

	// Wrong type.
	wrongType := []*tensors.Tensor{tensors.FromScalarAndDimensions(int32(0), 4), good[1]}
	err = Validate(Input, wrongType, contracts)
	require.ErrorIs(t, err, compass.ErrContractViolation)
	assert.Contains(t, err.Error(), "input #0")
	assert.Contains(t, err.Error(), "float32")
	assert.Contains(t, err.Error(), "int32")

	// Wrong size.
	wrongSize := []*tensors.Tensor{good[0], tensors.FromScalarAndDimensions(int8(0), 3)}
	err = Validate(Input, wrongSize, contracts)
	require.ErrorIs(t, err, compass.ErrContractViolation)
	assert.Contains(t, err.Error(), "input #1: wanted 2 bytes, got 3 bytes")
}

func TestValidateDTypes(t *testing.T) {
	contracts := []ParamInfo{New(dtypes.Float32.DataType(), 4)}
	require.NoError(t, ValidateDTypes(Input, []*tensors.Tensor{tensors.FromScalarAndDimensions(float32(0), 7, 3)}, contracts))
	require.ErrorIs(t, ValidateDTypes(Input, []*tensors.Tensor{tensors.FromScalarAndDimensions(float64(0), 4)}, contracts),
		compass.ErrContractViolation)
	require.ErrorIs(t, ValidateDTypes(Input, nil, contracts), compass.ErrContractViolation)
	require.NoError(t, ValidateCount(Output, nil, nil))
}
