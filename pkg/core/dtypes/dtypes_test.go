// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestMapOfNames(t *testing.T) {
	if MapOfNames["Float16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"Float16\"] to be Float16, got %v", MapOfNames["Float16"])
	}
	if MapOfNames["float16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"float16\"] to be Float16, got %v", MapOfNames["float16"])
	}
	if MapOfNames["f32"] != Float32 {
		t.Fatalf("expected MapOfNames[\"f32\"] to be Float32, got %v", MapOfNames["f32"])
	}
	if MapOfNames["bf16"] != BFloat16 {
		t.Fatalf("expected MapOfNames[\"bf16\"] to be BFloat16, got %v", MapOfNames["bf16"])
	}
}

func TestFromGenericsType(t *testing.T) {
	assert.Equal(t, Float32, FromGenericsType[float32]())
	assert.Equal(t, Float16, FromGenericsType[float16.Float16]())
	assert.Equal(t, Uint64, FromGenericsType[uint64]())
	assert.Equal(t, Int32, FromGenericsType[int32]())
	assert.Equal(t, Bool, FromGenericsType[bool]())
	assert.Equal(t, Int8, FromGoType(reflect.TypeOf(int8(0))))
	assert.Equal(t, InvalidDType, FromGoType(reflect.TypeOf("")))
}

func TestDataType(t *testing.T) {
	assert.Equal(t, DataType{Code: CodeFloat, Bits: 32, Lanes: 1}, Float32.DataType())
	assert.Equal(t, DataType{Code: CodeInt, Bits: 32, Lanes: 1}, Int32.DataType())
	assert.Equal(t, DataType{Code: CodeUInt, Bits: 64, Lanes: 1}, Uint64.DataType())
	assert.Equal(t, DataType{Code: CodeBFloat, Bits: 16, Lanes: 1}, BFloat16.DataType())
	assert.NotEqual(t, Int32.DataType(), Uint32.DataType())
	assert.NotEqual(t, Float32.DataType(), Make(Float32, 4))

	for dtype := range dtypeNames {
		if dtype == InvalidDType {
			continue
		}
		require.Equalf(t, dtype, dtype.DataType().DType(), "round trip of %s", dtype)
	}
	assert.Equal(t, InvalidDType, DataType{Code: CodeFloat, Bits: 8, Lanes: 1}.DType())
	require.Panics(t, func() { _ = InvalidDType.DataType() })
}

func TestDataTypeByteSizeAndString(t *testing.T) {
	assert.Equal(t, 16, Float32.DataType().ByteSize(4))
	assert.Equal(t, 16, Make(Int8, 4).ByteSize(4))
	assert.Equal(t, 1, DataType{Code: CodeInt, Bits: 4, Lanes: 1}.ByteSize(1))
	assert.Equal(t, "float32", Float32.DataType().String())
	assert.Equal(t, "int8x4", Make(Int8, 4).String())
	assert.Equal(t, "uint64", Uint64.DataType().String())
	assert.Equal(t, "bool", Bool.DataType().String())
	assert.Equal(t, "Float32", Float32.String())
	assert.Equal(t, "DType(99)", DType(99).String())
}
