// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package numpy allows one to read/write tensors to Python's NumPy npy and npz file formats.
//
// Only little-endian, C-order (row-major) arrays of the dtypes supported by package dtypes are handled: that is
// what accelerator inputs and outputs are.
package numpy

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/shapes"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/pkg/errors"
)

const npyMagic = "\x93NUMPY"

// FromNpyFile reads a .npy file and returns a tensors.Tensor.
func FromNpyFile(filePath string) (*tensors.Tensor, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npy file %q", filePath)
	}
	defer func() { _ = file.Close() }()
	t, err := FromNpyReader(file)
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading %q", filePath)
	}
	return t, nil
}

// FromNpyReader reads a .npy file from an io.Reader and returns a tensors.Tensor.
func FromNpyReader(r io.Reader) (*tensors.Tensor, error) {
	preamble := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return nil, errors.Wrapf(err, "failed to read magic string and version")
	}
	if string(preamble[:len(npyMagic)]) != npyMagic {
		return nil, errors.Errorf("invalid .npy file format: magic string mismatch")
	}
	major := preamble[len(npyMagic)]

	var headerLen int
	switch {
	case major == 1:
		lenBytes := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v1.0)")
		}
		headerLen = int(binary.LittleEndian.Uint16(lenBytes))
	case major >= 2:
		lenBytes := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v2.0+)")
		}
		headerLen = int(binary.LittleEndian.Uint32(lenBytes))
	default:
		return nil, errors.Errorf("unsupported .npy version: %d.%d", major, preamble[len(npyMagic)+1])
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errors.Wrapf(err, "failed to read header")
	}
	dtypeStr, dims, fortranOrder, err := parseNpyHeader(string(headerBytes))
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to parse .npy header")
	}
	if strings.HasPrefix(dtypeStr, ">") {
		return nil, errors.Errorf("big-endian .npy files (%q) are not supported", dtypeStr)
	}
	if fortranOrder && len(dims) > 1 {
		return nil, errors.Errorf("fortran-order .npy files are not supported")
	}
	dtype, err := npyDTypeToDType(dtypeStr)
	if err != nil {
		return nil, err
	}

	tensor := tensors.FromShape(shapes.Make(dtype, dims...))
	var readErr error
	err = tensor.MutableBytes(func(data []byte) {
		if _, readErr = io.ReadFull(r, data); readErr != nil {
			readErr = errors.Wrapf(readErr, "failed to read tensor data (expected %d bytes)", len(data))
		}
	})
	if err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	return tensor, nil
}

var (
	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// parseNpyHeader extracts dtype, shape, and fortran_order from the .npy header string.
// Example: "{'descr': '<f4', 'fortran_order': False, 'shape': (1, 2, 3), }"
func parseNpyHeader(header string) (dtype string, dims []int, fortranOrder bool, err error) {
	mDescr := reDescr.FindStringSubmatch(header)
	if len(mDescr) < 2 {
		err = errors.Errorf("could not find 'descr' in header: %q", header)
		return
	}
	dtype = mDescr[1]

	mFortran := reFortran.FindStringSubmatch(header)
	if len(mFortran) < 2 {
		err = errors.Errorf("could not find 'fortran_order' in header: %q", header)
		return
	}
	fortranOrder = mFortran[1] == "True"

	mShape := reShape.FindStringSubmatch(header)
	if len(mShape) < 2 {
		err = errors.Errorf("could not find 'shape' in header: %q", header)
		return
	}
	dims = []int{}
	for _, p := range strings.Split(mShape[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" { // Trailing comma, like in (10,)
			continue
		}
		val, pErr := strconv.Atoi(p)
		if pErr != nil {
			err = errors.Wrapf(pErr, "invalid shape value %q in header", p)
			return
		}
		dims = append(dims, val)
	}
	return
}

var npySuffixes = []struct {
	suffix string
	dtype  dtypes.DType
}{
	{"b1", dtypes.Bool},
	{"i1", dtypes.Int8},
	{"u1", dtypes.Uint8},
	{"i2", dtypes.Int16},
	{"u2", dtypes.Uint16},
	{"i4", dtypes.Int32},
	{"u4", dtypes.Uint32},
	{"i8", dtypes.Int64},
	{"u8", dtypes.Uint64},
	{"f2", dtypes.Float16},
	{"f4", dtypes.Float32},
	{"f8", dtypes.Float64},
}

// npyDTypeToDType converts a NumPy dtype string to a dtypes.DType.
func npyDTypeToDType(npyType string) (dtypes.DType, error) {
	if npyType == "?" {
		return dtypes.Bool, nil
	}
	for _, entry := range npySuffixes {
		if strings.HasSuffix(npyType, entry.suffix) {
			return entry.dtype, nil
		}
	}
	return dtypes.InvalidDType, errors.Errorf("unsupported NumPy dtype: %s", npyType)
}

// dtypeToNpy converts a dtypes.DType to the little-endian NumPy dtype string.
func dtypeToNpy(dtype dtypes.DType) (string, error) {
	if dtype == dtypes.Bool {
		return "|b1", nil
	}
	for _, entry := range npySuffixes {
		if entry.dtype == dtype {
			if dtype.Size() == 1 {
				return "|" + entry.suffix, nil
			}
			return "<" + entry.suffix, nil
		}
	}
	return "", errors.Errorf("unsupported DType for .npy: %s", dtype)
}

// ToNpyWriter serializes the tensor in .npy format (version 1.0) to w.
//
// Multi-lane tensors are written with the lanes as an extra last axis.
func ToNpyWriter(tensor *tensors.Tensor, w io.Writer) error {
	shape := tensor.Shape()
	descr, err := dtypeToNpy(shape.DType)
	if err != nil {
		return err
	}
	dims := shape.Dimensions
	if tensor.Lanes() > 1 {
		dims = append(dims[:len(dims):len(dims)], tensor.Lanes())
	}

	// Note the trailing comma in shape tuple for 1D arrays, and no comma for 0D.
	var shapeTuple string
	switch len(dims) {
	case 0:
		shapeTuple = "()"
	case 1:
		shapeTuple = fmt.Sprintf("(%d,)", dims[0])
	default:
		dimsStr := make([]string, len(dims))
		for i, dim := range dims {
			dimsStr[i] = strconv.Itoa(dim)
		}
		shapeTuple = fmt.Sprintf("(%s)", strings.Join(dimsStr, ", "))
	}

	// The preamble (magic + version + header length = 10 bytes) plus the header, terminated by a newline,
	// must be a multiple of 16 for version 1.0.
	var headerBuf bytes.Buffer
	fmt.Fprintf(&headerBuf, "{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeTuple)
	for (10+headerBuf.Len()+1)%16 != 0 {
		headerBuf.WriteByte(' ')
	}
	headerBuf.WriteByte('\n')

	var out bytes.Buffer
	out.WriteString(npyMagic)
	out.Write([]byte{1, 0})
	_ = binary.Write(&out, binary.LittleEndian, uint16(headerBuf.Len()))
	out.Write(headerBuf.Bytes())
	if _, err := w.Write(out.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write .npy header")
	}

	var writeErr error
	err = tensor.ConstBytes(func(data []byte) {
		if _, writeErr = w.Write(data); writeErr != nil {
			writeErr = errors.Wrapf(writeErr, "failed to write tensor data")
		}
	})
	if err != nil {
		return err
	}
	return writeErr
}

// ToNpyFile serializes a tensors.Tensor to a .npy file.
func ToNpyFile(tensor *tensors.Tensor, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npy file %q", filePath)
	}
	if err = ToNpyWriter(tensor, file); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "failed to close .npy file %q", filePath)
}

// ToNpzFile serializes a list of tensors to a .npz file. Tensor i is stored as "arr_<i>.npy", the same
// default naming numpy.savez uses for positional arrays.
func ToNpzFile(tensorsList []*tensors.Tensor, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npz file %q", filePath)
	}
	zipWriter := zip.NewWriter(file)
	for ii, tensor := range tensorsList {
		npyName := fmt.Sprintf("arr_%d.npy", ii)
		fileWriter, err := zipWriter.Create(npyName)
		if err != nil {
			_ = file.Close()
			return errors.Wrapf(err, "failed to create %q in .npz archive", npyName)
		}
		if err := ToNpyWriter(tensor, fileWriter); err != nil {
			_ = file.Close()
			return errors.WithMessagef(err, "failed to write tensor #%d to .npz archive", ii)
		}
	}
	if err := zipWriter.Close(); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "failed to finish .npz archive %q", filePath)
	}
	return errors.Wrapf(file.Close(), "failed to close .npz file %q", filePath)
}

// FromNpzFile reads a .npz file written by ToNpzFile (or numpy.savez with positional arrays), and returns the
// tensors in order.
func FromNpzFile(filePath string) ([]*tensors.Tensor, error) {
	reader, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npz file %q", filePath)
	}
	defer func() { _ = reader.Close() }()

	byIndex := make(map[int]*tensors.Tensor)
	for _, zf := range reader.File {
		var idx int
		if _, err := fmt.Sscanf(zf.Name, "arr_%d.npy", &idx); err != nil {
			return nil, errors.Errorf("unexpected entry %q in .npz file %q", zf.Name, filePath)
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %q in .npz file %q", zf.Name, filePath)
		}
		t, err := FromNpyReader(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "while reading %q in .npz file %q", zf.Name, filePath)
		}
		byIndex[idx] = t
	}
	result := make([]*tensors.Tensor, len(byIndex))
	for idx, t := range byIndex {
		if idx < 0 || idx >= len(result) {
			return nil, errors.Errorf("non-sequential entry arr_%d.npy in .npz file %q", idx, filePath)
		}
		result[idx] = t
	}
	return result, nil
}
