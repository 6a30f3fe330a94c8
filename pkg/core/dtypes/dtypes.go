// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the data types an accelerator program can declare for
// its parameters, and the DataType element descriptor (type code, bits and lanes) used by the
// parameter contracts.
//
// DType is what Go code works with: it maps to a Go type and has converters from Go native types.
// DataType is what the driver reports and what arguments are checked against: it follows the DLPack
// convention, so vectorized elements (lanes > 1) can be described, even though arguments bound to a
// module must be single-lane.
package dtypes

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters don't follow the specifications.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

// DType is an enum represents the data type of a buffer or a scalar.
//
// The values are aligned with the ones used by GoMLX, which in turn follow PJRT.
type DType int32

const (
	// InvalidDType is the zero value, used for uninitialized dtypes.
	InvalidDType DType = 0

	// Bool are two-state booleans, stored as one byte.
	Bool DType = 1

	// Int8 and the following are signed integral values of fixed width.
	Int8  DType = 2
	Int16 DType = 3
	Int32 DType = 4
	Int64 DType = 5

	// Uint8 and the following are unsigned integral values of fixed width.
	Uint8  DType = 6
	Uint16 DType = 7
	Uint32 DType = 8
	Uint64 DType = 9

	// Float16 is the IEEE 754 half-precision float.
	Float16 DType = 10
	Float32 DType = 11
	Float64 DType = 12

	// BFloat16 is the "brain float", a truncated float32. It is stored as an uint16 on the Go side.
	BFloat16 DType = 13
)

// Aliases following the C enum names.
const (
	PRED = Bool
	S8   = Int8
	S16  = Int16
	S32  = Int32
	S64  = Int64
	U8   = Uint8
	U16  = Uint16
	U32  = Uint32
	U64  = Uint64
	F16  = Float16
	F32  = Float32
	F64  = Float64
	BF16 = BFloat16
)

var dtypeNames = map[DType]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
	BFloat16:     "BFloat16",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if name, found := dtypeNames[dtype]; found {
		return name
	}
	return "DType(" + strconv.Itoa(int(dtype)) + ")"
}

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// It is also initialized to include the lower-case version of the names.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Bool":         Bool,
	"PRED":         Bool,
	"Int8":         Int8,
	"S8":           Int8,
	"Int16":        Int16,
	"S16":          Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Uint16":       Uint16,
	"U16":          Uint16,
	"Uint32":       Uint32,
	"U32":          Uint32,
	"Uint64":       Uint64,
	"U64":          Uint64,
	"Float16":      Float16,
	"F16":          Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float64":      Float64,
	"F64":          Float64,
	"BFloat16":     BFloat16,
	"BF16":         BFloat16,
}

func init() {
	// Only works for 32 and 64 bits platforms.
	if strconv.IntSize != 32 && strconv.IntSize != 64 {
		panicf("cannot use int of %d bits -- only platforms with int32 or int64 are supported", strconv.IntSize)
	}

	// Add a mapping to the lower-case version of dtypes.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if lowerKey == key {
			continue
		}
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// Supported lists the Go types that map one-to-one to a DType.
// Used as traits for generics.
//
// Notice Go's `int` type is not portable, since it may translate to dtypes Int32 or Int64 depending
// on the platform.
type Supported interface {
	bool | float16.Float16 | float32 | float64 | int | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

// FromGenericsType returns the DType enum for the given type that this package knows about.
//
// Notice uint16 maps to Uint16: there is no way to ask for BFloat16 through generics.
func FromGenericsType[T Supported]() DType {
	var t T
	switch (any(t)).(type) {
	case float64:
		return Float64
	case float32:
		return Float32
	case float16.Float16:
		return Float16
	case int:
		if strconv.IntSize == 32 {
			return Int32
		}
		return Int64
	case int64:
		return Int64
	case int32:
		return Int32
	case int16:
		return Int16
	case int8:
		return Int8
	case bool:
		return Bool
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	}
	return InvalidDType
}

var (
	float16Type = reflect.TypeOf(float16.Float16(0))
	goTypes     = map[DType]reflect.Type{
		Bool:     reflect.TypeOf(true),
		Int8:     reflect.TypeOf(int8(0)),
		Int16:    reflect.TypeOf(int16(0)),
		Int32:    reflect.TypeOf(int32(0)),
		Int64:    reflect.TypeOf(int64(0)),
		Uint8:    reflect.TypeOf(uint8(0)),
		Uint16:   reflect.TypeOf(uint16(0)),
		Uint32:   reflect.TypeOf(uint32(0)),
		Uint64:   reflect.TypeOf(uint64(0)),
		Float16:  float16Type,
		Float32:  reflect.TypeOf(float32(0)),
		Float64:  reflect.TypeOf(float64(0)),
		BFloat16: reflect.TypeOf(uint16(0)),
	}
)

// GoType returns the Go `reflect.Type` corresponding to the DType.
// It panics for invalid dtypes.
func (dtype DType) GoType() reflect.Type {
	t, found := goTypes[dtype]
	if !found {
		panicf("unknown dtype %q (%d) in DType.GoType", dtype, dtype)
	}
	return t
}

// FromGoType returns the DType for the given "reflect.Type", or InvalidDType if unknown.
func FromGoType(t reflect.Type) DType {
	if t == float16Type {
		return Float16
	}
	switch t.Kind() {
	case reflect.Int:
		if strconv.IntSize == 32 {
			return Int32
		}
		return Int64
	case reflect.Int64:
		return Int64
	case reflect.Int32:
		return Int32
	case reflect.Int16:
		return Int16
	case reflect.Int8:
		return Int8
	case reflect.Uint64:
		return Uint64
	case reflect.Uint32:
		return Uint32
	case reflect.Uint16:
		return Uint16
	case reflect.Uint8:
		return Uint8
	case reflect.Bool:
		return Bool
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	default:
		return InvalidDType
	}
}

// Size returns the number of bytes for the given DType.
func (dtype DType) Size() int {
	return int(dtype.GoType().Size())
}

// Bits returns the number of bits for the given DType.
func (dtype DType) Bits() int {
	return dtype.Size() * 8
}

// Memory returns the number of bytes for the given DType.
// It's an alias to Size, converted to uintptr.
func (dtype DType) Memory() uintptr {
	return uintptr(dtype.Size())
}

// IsFloat returns whether dtype is a float (including the 16 bits ones).
func (dtype DType) IsFloat() bool {
	return dtype == Float32 || dtype == Float64 || dtype == Float16 || dtype == BFloat16
}

// IsInt returns whether dtype is a signed or unsigned integer type.
func (dtype DType) IsInt() bool {
	return dtype == Int64 || dtype == Int32 || dtype == Int16 || dtype == Int8 || dtype.IsUnsigned()
}

// IsUnsigned returns whether dtype is one of the unsigned integer types.
func (dtype DType) IsUnsigned() bool {
	return dtype == Uint8 || dtype == Uint16 || dtype == Uint32 || dtype == Uint64
}

// TypeCode is the DLPack type code of an element: the "kind" of number, without its width.
type TypeCode uint8

const (
	CodeInt    TypeCode = 0
	CodeUInt   TypeCode = 1
	CodeFloat  TypeCode = 2
	CodeBFloat TypeCode = 4
	CodeBool   TypeCode = 6
)

// DataType describes one element of a tensor as the driver sees it: type code, bit width and number of lanes.
//
// Two DataType values are the same element type if they compare equal with ==.
type DataType struct {
	Code  TypeCode
	Bits  uint8
	Lanes uint16
}

// DataType returns the single-lane element descriptor of dtype.
// It panics for InvalidDType.
func (dtype DType) DataType() DataType {
	switch {
	case dtype == Bool:
		return DataType{Code: CodeBool, Bits: 8, Lanes: 1}
	case dtype == BFloat16:
		return DataType{Code: CodeBFloat, Bits: 16, Lanes: 1}
	case dtype.IsFloat():
		return DataType{Code: CodeFloat, Bits: uint8(dtype.Bits()), Lanes: 1}
	case dtype.IsUnsigned():
		return DataType{Code: CodeUInt, Bits: uint8(dtype.Bits()), Lanes: 1}
	case dtype.IsInt():
		return DataType{Code: CodeInt, Bits: uint8(dtype.Bits()), Lanes: 1}
	}
	panicf("DType %s has no DataType", dtype)
	return DataType{}
}

// Make returns the DataType for dtype with the given number of lanes.
func Make(dtype DType, lanes int) DataType {
	dt := dtype.DataType()
	dt.Lanes = uint16(lanes)
	return dt
}

// DType returns the DType of one lane of the element, or InvalidDType if there is no such DType.
func (dt DataType) DType() DType {
	switch dt.Code {
	case CodeBool:
		if dt.Bits == 8 {
			return Bool
		}
	case CodeBFloat:
		if dt.Bits == 16 {
			return BFloat16
		}
	case CodeFloat:
		switch dt.Bits {
		case 16:
			return Float16
		case 32:
			return Float32
		case 64:
			return Float64
		}
	case CodeUInt:
		switch dt.Bits {
		case 8:
			return Uint8
		case 16:
			return Uint16
		case 32:
			return Uint32
		case 64:
			return Uint64
		}
	case CodeInt:
		switch dt.Bits {
		case 8:
			return Int8
		case 16:
			return Int16
		case 32:
			return Int32
		case 64:
			return Int64
		}
	}
	return InvalidDType
}

// ByteSize returns the number of bytes used by numElements elements of this type, rounded up to a whole byte.
func (dt DataType) ByteSize(numElements int) int {
	bits := numElements * int(dt.Bits) * int(dt.Lanes)
	return (bits + 7) / 8
}

// String renders the element type the way TVM does: e.g. "float32", "uint8", "int8x4".
func (dt DataType) String() string {
	var kind string
	switch dt.Code {
	case CodeInt:
		kind = "int"
	case CodeUInt:
		kind = "uint"
	case CodeFloat:
		kind = "float"
	case CodeBFloat:
		kind = "bfloat"
	case CodeBool:
		return "bool"
	default:
		kind = fmt.Sprintf("code%d_", dt.Code)
	}
	s := kind + strconv.Itoa(int(dt.Bits))
	if dt.Lanes > 1 {
		s += "x" + strconv.Itoa(int(dt.Lanes))
	}
	return s
}
