// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromFlatDataAndDimensions(t *testing.T) {
	x := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)
	assert.Equal(t, dtypes.Float32, x.DType())
	assert.Equal(t, []int{2, 2}, x.Shape().Dimensions)
	assert.Equal(t, 16, x.ByteSize())
	assert.Equal(t, 1, x.Lanes())
	assert.False(t, x.IsExternal())
	assert.True(t, x.IsContiguous())
	assert.Equal(t, []float32{1, 2, 3, 4}, MustCopyFlatData[float32](x))
	assert.Equal(t, "Tensor(Float32)[2 2]: [1 2 3 4]", x.String())

	require.Panics(t, func() { _ = FromFlatDataAndDimensions([]int32{1, 2, 3}, 2, 2) })

	_, err := CopyFlatData[int32](x)
	require.Error(t, err)

	h := FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(1.5)}, 1)
	assert.Equal(t, 2, h.ByteSize())
	assert.Equal(t, float32(1.5), MustCopyFlatData[float16.Float16](h)[0].Float32())
}

func TestFromScalarAndBytes(t *testing.T) {
	x := FromScalarAndDimensions(int32(7), 3)
	assert.Equal(t, []int32{7, 7, 7}, MustCopyFlatData[int32](x))

	y, err := FromBytes(shapes.Make(dtypes.Uint8, 2), []byte{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []uint8{3, 4}, MustCopyFlatData[uint8](y))

	_, err = FromBytes(shapes.Make(dtypes.Uint8, 3), []byte{3, 4})
	require.Error(t, err)

	z := FromShape(shapes.Make(dtypes.Float64, 2))
	assert.Equal(t, []float64{0, 0}, MustCopyFlatData[float64](z))
	z2 := FromFlatDataAndDimensions([]float64{0, 0}, 2)
	assert.True(t, z.Equal(z2))
	z2.MustMutableBytes(func(data []byte) { data[0] = 1 })
	assert.False(t, z.Equal(z2))
}

func TestFromExternal(t *testing.T) {
	storage := make([]byte, 40)
	storage[8] = 9

	x, err := FromExternal(dtypes.Uint8.DataType(), []int{4, 8}, storage, 8, nil)
	require.NoError(t, err)
	assert.True(t, x.IsExternal())
	assert.Equal(t, 8, x.ByteOffset())
	assert.Equal(t, 32, x.ByteSize())
	require.NoError(t, x.ConstBytes(func(data []byte) {
		assert.Len(t, data, 32)
		assert.Equal(t, byte(9), data[0])
	}))

	// Storage too small.
	_, err = FromExternal(dtypes.Uint8.DataType(), []int{4, 8}, storage, 16, nil)
	require.Error(t, err)

	// Multiple lanes.
	v, err := FromExternal(dtypes.Make(dtypes.Int8, 4), []int{2}, storage, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Lanes())
	assert.Equal(t, 8, v.ByteSize())
	assert.Equal(t, dtypes.Make(dtypes.Int8, 4), v.DataType())

	// Transposed strides.
	s, err := FromExternal(dtypes.Uint8.DataType(), []int{2, 3}, storage, 0, []int{1, 2})
	require.NoError(t, err)
	assert.False(t, s.IsContiguous())
	require.Error(t, s.ConstBytes(func([]byte) {}))

	// Strides equivalent to compact, with a dimension 1 axis.
	c, err := FromExternal(dtypes.Uint8.DataType(), []int{1, 3}, storage, 0, []int{100, 1})
	require.NoError(t, err)
	assert.True(t, c.IsContiguous())

	_, err = FromExternal(dtypes.DataType{Code: dtypes.CodeFloat, Bits: 8, Lanes: 1}, []int{2}, storage, 0, nil)
	require.Error(t, err)
	_, err = FromExternal(dtypes.Uint8.DataType(), []int{2, 3}, storage, 0, []int{1})
	require.Error(t, err)
}
