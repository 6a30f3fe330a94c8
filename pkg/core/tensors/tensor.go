// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implement a `Tensor`, the host-side handle of a multidimensional array that is bound
// as an argument to an accelerator program.
//
// A Tensor is defined by its shape (a data type and its axes' dimensions), its element lanes, and a byte storage.
// The storage is either owned by the Tensor (all the FromXXX constructors, except FromExternal) or borrowed from
// somewhere else (FromExternal): the latter models the handles a host graph runtime passes in, which may have an
// arbitrary byte offset, strides and vectorized (multi-lane) elements.
//
// There are various ways to construct a Tensor:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//
//   - FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int): creates a Tensor with the
//     given dimensions, filled with the scalar value given.
//
//   - FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int): creates a Tensor with the
//     given dimensions and set the flattened values with the given data. Example:
//
//     t := FromFlatDataAndDimensions([]int8{1, 2, 3, 4}, 2, 2}) // Tensor with [[1,2], [3,4]]
//
//   - FromBytes(shape shapes.Shape, data []byte): copies raw little-endian bytes into a new Tensor.
//
//   - FromExternal(dataType, dimensions, data, byteOffset, strides): wraps storage owned by someone else.
package tensors

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unsafe"

	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Tensor represents a multidimensional array, defined by its shape, the number of lanes of each element,
// and its content stored as a flat byte array (row-major, little-endian).
//
// The zero value is not usable, create one with one of the constructors.
type Tensor struct {
	// shape of the tensor. The DType is the type of one lane of the elements.
	shape shapes.Shape

	// lanes per element, usually 1.
	lanes int

	// byteOffset into data where the tensor starts.
	byteOffset int

	// strides, in number of elements, per axis. nil means compact row-major.
	strides []int

	// mu protects data.
	mu sync.Mutex

	// data holds the storage. It may be larger than the tensor itself (external tensors).
	data []byte

	// external is true when data is borrowed.
	external bool
}

// newStorage allocates zeroed storage aligned to 8 bytes, so any supported Go type can be overlaid on it.
func newStorage(numBytes int) []byte {
	words := make([]uint64, (numBytes+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), numBytes)
}

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
//
// It panics if you provide an invalid shape.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape(%s): invalid shape", shape)
	}
	return &Tensor{
		shape: shape.Clone(),
		lanes: 1,
		data:  newStorage(shape.ByteSize()),
	}
}

// FromBytes returns a new Tensor with the given shape and a copy of data, which must have exactly the number of
// bytes of the shape.
func FromBytes(shape shapes.Shape, data []byte) (*Tensor, error) {
	if !shape.Ok() {
		return nil, errors.Errorf("tensors.FromBytes(%s): invalid shape", shape)
	}
	if len(data) != shape.ByteSize() {
		return nil, errors.Errorf("tensors.FromBytes(%s): data has %d bytes, but shape requires %d",
			shape, len(data), shape.ByteSize())
	}
	t := FromShape(shape)
	copy(t.data, data)
	return t, nil
}

// FromExternal wraps storage owned by the caller into a Tensor, without copying.
//
// dataType describes one element (possibly with multiple lanes), byteOffset is where the tensor starts in data, and
// strides (in elements) may be nil for a compact row-major layout. The caller must keep data alive while the tensor
// is in use.
func FromExternal(dataType dtypes.DataType, dimensions []int, data []byte, byteOffset int, strides []int) (*Tensor, error) {
	dtype := dataType.DType()
	if dtype == dtypes.InvalidDType {
		return nil, errors.Errorf("tensors.FromExternal: element type %s has no matching DType", dataType)
	}
	if dataType.Lanes == 0 {
		return nil, errors.Errorf("tensors.FromExternal: element type %s has 0 lanes", dataType)
	}
	for _, dim := range dimensions {
		if dim < 0 {
			return nil, errors.Errorf("tensors.FromExternal: negative dimension in %v", dimensions)
		}
	}
	if strides != nil && len(strides) != len(dimensions) {
		return nil, errors.Errorf("tensors.FromExternal: %d strides given for %d dimensions", len(strides), len(dimensions))
	}
	if byteOffset < 0 {
		return nil, errors.Errorf("tensors.FromExternal: negative byte offset %d", byteOffset)
	}
	t := &Tensor{
		shape:      shapes.Make(dtype, dimensions...),
		lanes:      int(dataType.Lanes),
		byteOffset: byteOffset,
		strides:    slices.Clone(strides),
		data:       data,
		external:   true,
	}
	if t.IsContiguous() && byteOffset+t.ByteSize() > len(data) {
		return nil, errors.Errorf("tensors.FromExternal: storage has %d bytes, tensor %s needs %d from offset %d",
			len(data), t.shape, t.ByteSize(), byteOffset)
	}
	return t, nil
}

// FromScalarAndDimensions creates a local tensor with the given dimensions, filled with the
// given scalar value replicated everywhere.
// The `DType` is inferred from the value.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	t := FromShape(shapes.Make(dtype, dimensions...))
	MustMutableFlatData(t, func(flat []T) {
		for ii := range flat {
			flat[ii] = value
		}
	})
	return t
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in `data`.
// The data is copied to the Tensor.
// The `DType` is inferred from the `data` type.
//
// It panics if the size of data is wrong for the shape.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	t := FromShape(shape)
	if len(data) > 0 {
		copy(t.data, unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(t.data)))
	}
	return t
}

// Shape of the tensor. The DType is the type of one lane of the elements.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's elements (of one lane).
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// DataType returns the element descriptor, including the lanes.
func (t *Tensor) DataType() dtypes.DataType { return dtypes.Make(t.shape.DType, t.lanes) }

// Rank of the tensor.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements of the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// ByteSize returns the number of bytes used by the elements of the tensor, without counting any gaps from strides.
func (t *Tensor) ByteSize() int { return t.DataType().ByteSize(t.shape.Size()) }

// Lanes returns the number of lanes per element.
func (t *Tensor) Lanes() int { return t.lanes }

// ByteOffset returns the offset in bytes where the tensor starts in its storage.
func (t *Tensor) ByteOffset() int { return t.byteOffset }

// Strides returns the explicit strides (in elements) or nil if the tensor is compact.
func (t *Tensor) Strides() []int { return t.strides }

// IsExternal returns whether the storage is borrowed.
func (t *Tensor) IsExternal() bool { return t.external }

// IsContiguous returns whether the elements are stored compactly in row-major order.
// Axes of dimension 1 don't affect contiguity.
func (t *Tensor) IsContiguous() bool {
	if t.strides == nil {
		return true
	}
	expected := 1
	for axis := t.Rank() - 1; axis >= 0; axis-- {
		dim := t.shape.Dimensions[axis]
		if dim == 1 {
			continue
		}
		if t.strides[axis] != expected {
			return false
		}
		expected *= dim
	}
	return true
}

// checkFlatAccess returns an error if the data can't be exposed as a flat byte slice.
func (t *Tensor) checkFlatAccess() error {
	if t == nil || t.data == nil {
		return errors.New("tensor is nil or finalized")
	}
	if !t.IsContiguous() {
		return errors.Errorf("tensor %s with strides %v is not contiguous", t.shape, t.strides)
	}
	return nil
}

// ConstBytes calls accessFn with the data as a bytes slice.
// It locks the Tensor until accessFn returns.
//
// This provides accessFn with the actual Tensor data (not a copy), and it should not be changed.
// See Tensor.MutableBytes to access a mutable version of the data as bytes.
func (t *Tensor) ConstBytes(accessFn func(data []byte)) error {
	return t.MutableBytes(accessFn)
}

// MutableBytes calls accessFn with the data as a bytes slice, which can be changed until accessFn returns.
// It locks the Tensor until accessFn returns.
func (t *Tensor) MutableBytes(accessFn func(data []byte)) error {
	if err := t.checkFlatAccess(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	accessFn(t.data[t.byteOffset : t.byteOffset+t.ByteSize()])
	return nil
}

// MustMutableBytes is like MutableBytes, but panics on error.
func (t *Tensor) MustMutableBytes(accessFn func(data []byte)) {
	if err := t.MutableBytes(accessFn); err != nil {
		panic(err)
	}
}

// MutableFlatData calls accessFn with a flat slice pointing to the Tensor data.
// The type T must match the DType of the tensor, and the tensor must be single-lane.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) error {
	if dtype := dtypes.FromGenericsType[T](); dtype != t.DType() {
		return errors.Errorf("MutableFlatData[%s]: tensor has dtype %s", dtype, t.DType())
	}
	if t.lanes != 1 {
		return errors.Errorf("MutableFlatData: tensor has %d lanes", t.lanes)
	}
	var err error
	accessErr := t.MutableBytes(func(data []byte) {
		if len(data) == 0 {
			accessFn(nil)
			return
		}
		var dummy T
		if uintptr(unsafe.Pointer(&data[0]))%unsafe.Alignof(dummy) != 0 {
			err = errors.Errorf("MutableFlatData: storage at offset %d is not aligned for %T", t.byteOffset, dummy)
			return
		}
		accessFn(unsafe.Slice((*T)(unsafe.Pointer(&data[0])), t.Size()))
	})
	if accessErr != nil {
		return accessErr
	}
	return err
}

// MustMutableFlatData is like MutableFlatData, but panics on error.
func MustMutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	if err := MutableFlatData(t, accessFn); err != nil {
		panic(err)
	}
}

// ConstFlatData calls accessFn with a flat slice pointing to the Tensor data, that should not be changed.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) error {
	return MutableFlatData(t, accessFn)
}

// CopyFlatData returns a copy of the flat data of the tensor.
func CopyFlatData[T dtypes.Supported](t *Tensor) ([]T, error) {
	var result []T
	err := ConstFlatData(t, func(flat []T) {
		result = slices.Clone(flat)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MustCopyFlatData is like CopyFlatData, but panics on error.
func MustCopyFlatData[T dtypes.Supported](t *Tensor) []T {
	flat, err := CopyFlatData[T](t)
	if err != nil {
		panic(err)
	}
	return flat
}

// Equal checks whether both tensors have the same shape, lanes and contents.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == other {
		return true
	}
	if !t.shape.Equal(other.shape) || t.lanes != other.lanes {
		return false
	}
	equal := false
	err := t.ConstBytes(func(data []byte) {
		err := other.ConstBytes(func(otherData []byte) {
			equal = slices.Equal(data, otherData)
		})
		if err != nil {
			equal = false
		}
	})
	return err == nil && equal
}

// maxStringValues is the maximum number of values printed by Tensor.String.
const maxStringValues = 16

// String implements fmt.Stringer, with a short summary of the contents.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor%s", t.shape)
	if t.lanes > 1 {
		fmt.Fprintf(&sb, "x%d", t.lanes)
	}
	if t.lanes != 1 || t.shape.DType == dtypes.BFloat16 {
		fmt.Fprintf(&sb, " (%d bytes)", t.ByteSize())
		return sb.String()
	}
	err := t.ConstBytes(func(data []byte) {
		goType := t.shape.DType.GoType()
		n := min(t.Size(), maxStringValues)
		values := make([]string, 0, n)
		elemSize := int(goType.Size())
		for ii := 0; ii < n; ii++ {
			v := reflect.New(goType)
			copy(unsafe.Slice((*byte)(v.UnsafePointer()), elemSize), data[ii*elemSize:(ii+1)*elemSize])
			values = append(values, fmt.Sprint(v.Elem().Interface()))
		}
		if t.Size() > n {
			values = append(values, "...")
		}
		fmt.Fprintf(&sb, ": [%s]", strings.Join(values, " "))
	})
	if err != nil {
		fmt.Fprintf(&sb, " (%v)", err)
	}
	return sb.String()
}
