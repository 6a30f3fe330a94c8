// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package stream implements the length-prefixed binary encoding used to persist modules: each field is
// written as a little-endian uint64 with its length, followed by that many bytes.
//
// It is the same layout the TVM runtime uses for strings in dmlc streams, so modules saved here can be
// exchanged with it.
package stream

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxFieldSize limits the length of one field accepted by Reader, to fail fast on corrupted streams
// instead of trying to allocate absurd amounts of memory.
var MaxFieldSize uint64 = 1 << 34

// Writer writes length-prefixed fields. The first error is kept, and following writes are no-ops.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteBytes writes one field.
func (sw *Writer) WriteBytes(data []byte) {
	if sw.err != nil {
		return
	}
	var lenBytes [8]byte
	binary.LittleEndian.PutUint64(lenBytes[:], uint64(len(data)))
	if _, err := sw.w.Write(lenBytes[:]); err != nil {
		sw.err = errors.Wrap(err, "failed to write field length")
		return
	}
	if _, err := sw.w.Write(data); err != nil {
		sw.err = errors.Wrapf(err, "failed to write field of %d bytes", len(data))
	}
}

// WriteString writes one field.
func (sw *Writer) WriteString(s string) {
	sw.WriteBytes([]byte(s))
}

// Err returns the first error that happened while writing.
func (sw *Writer) Err() error { return sw.err }

// Reader reads length-prefixed fields. The first error is kept, and following reads return zero values.
type Reader struct {
	r   io.Reader
	err error
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadBytes reads one field. Any short read is an error, reported by Err.
func (sr *Reader) ReadBytes(fieldName string) []byte {
	if sr.err != nil {
		return nil
	}
	var lenBytes [8]byte
	if _, err := io.ReadFull(sr.r, lenBytes[:]); err != nil {
		sr.err = errors.Wrapf(err, "failed to read length of field %q", fieldName)
		return nil
	}
	length := binary.LittleEndian.Uint64(lenBytes[:])
	if length > MaxFieldSize {
		sr.err = errors.Errorf("field %q has length %d, larger than the maximum %d", fieldName, length, MaxFieldSize)
		return nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(sr.r, data); err != nil {
		sr.err = errors.Wrapf(err, "failed to read %d bytes of field %q", length, fieldName)
		return nil
	}
	return data
}

// ReadString reads one field as a string.
func (sr *Reader) ReadString(fieldName string) string {
	return string(sr.ReadBytes(fieldName))
}

// Err returns the first error that happened while reading.
func (sr *Reader) Err() error { return sr.err }
