// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package numpy

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNpyHeader(t *testing.T) {
	var buf bytes.Buffer
	x := tensors.FromFlatDataAndDimensions([]int16{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, ToNpyWriter(x, &buf))
	data := buf.Bytes()
	require.Equal(t, npyMagic, string(data[:6]))
	headerLen := int(data[8]) | int(data[9])<<8
	assert.Zero(t, (10+headerLen)%16, "preamble plus header must be aligned to 16 bytes")
	header := string(data[10 : 10+headerLen])
	assert.Contains(t, header, "'descr': '<i2'")
	assert.Contains(t, header, "'shape': (2, 3)")
	assert.Len(t, data, 10+headerLen+12)

	y, err := FromNpyReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, x.Equal(y))
}

func TestNpyFiles(t *testing.T) {
	dir := t.TempDir()
	x := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
	path := filepath.Join(dir, "x.npy")
	require.NoError(t, ToNpyFile(x, path))
	y, err := FromNpyFile(path)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, y.Shape().Dimensions)
	assert.Equal(t, []float32{1, 2, 3}, tensors.MustCopyFlatData[float32](y))

	scalar := tensors.FromFlatDataAndDimensions([]uint8{7})
	npzPath := filepath.Join(dir, "all.npz")
	require.NoError(t, ToNpzFile([]*tensors.Tensor{x, scalar}, npzPath))
	all, err := FromNpzFile(npzPath)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, x.Equal(all[0]))
	assert.Equal(t, dtypes.Uint8, all[1].DType())
	assert.Equal(t, 0, all[1].Rank())

	_, err = FromNpyReader(bytes.NewReader([]byte("not a numpy file")))
	require.Error(t, err)
}

func TestNpyMultiLane(t *testing.T) {
	storage := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	v, err := tensors.FromExternal(dtypes.Make(dtypes.Int8, 4), []int{2}, storage, 0, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, ToNpyWriter(v, &buf))
	y, err := FromNpyReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, y.Shape().Dimensions)
	assert.Equal(t, []int8{1, 2, 3, 4, 5, 6, 7, 8}, tensors.MustCopyFlatData[int8](y))
}

func TestParseNpyHeader(t *testing.T) {
	dtype, dims, fortran, err := parseNpyHeader("{'descr': '<f4', 'fortran_order': False, 'shape': (10,), }")
	require.NoError(t, err)
	assert.Equal(t, "<f4", dtype)
	assert.Equal(t, []int{10}, dims)
	assert.False(t, fortran)

	_, dims, _, err = parseNpyHeader("{'descr': '<f4', 'fortran_order': True, 'shape': (), }")
	require.NoError(t, err)
	assert.Empty(t, dims)

	_, _, _, err = parseNpyHeader("{'descr': '<f4'}")
	require.Error(t, err)
}
