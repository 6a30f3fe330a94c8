// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sim implements a software simulator of the accelerator, registered as the driver "sim".
//
// The simulator runs programs encoded with Encode: they declare their parameters and one of a few fixed
// kernels (see KernelIdentity, KernelSum and KernelReverse). It is meant for tests and for running the
// execution adapter without hardware. Shared buffers are simulated by a process-wide pool of memory,
// see SharedMemory.
//
// Driver options (the part after "sim:" in the driver configuration) is a comma separated list of:
//
//   - "profile": collect profiling data, even if not enabled in the configuration.
package sim

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/compass/pkg/compass/driver"
	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/core/shapes"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Name of the driver in the registry.
const Name = "sim"

// ProfileFileName is the file, in the session work directory, where profiling data is appended.
const ProfileFileName = "profile_data.txt"

func init() {
	driver.Register(Name, func(opts driver.Options) (driver.Session, error) { return New(opts) })
}

type runRecord struct {
	kernel   string
	duration time.Duration
	bytes    int
}

// Session of the simulator. It implements driver.Session.
type Session struct {
	opts    driver.Options
	program *Program
	memory  *Memory

	// dtcmLimit is the maximum number of bytes of device memory the session can allocate, 0 is unlimited.
	dtcmLimit, allocated uint64

	inputShapes, outputShapes [][]int
	dynamic                   bool

	inputs      [][]byte
	outputDests []*tensors.Tensor
	results     [][]byte

	inShared, outShared []*Buffer
	owned               []*Buffer

	profile  bool
	numRuns  int
	profiled []runRecord

	finalized bool
}

var _ driver.Session = (*Session)(nil)

// New opens a simulator session for the program in opts.Binary.
func New(opts driver.Options) (*Session, error) {
	program, err := Decode(opts.Binary)
	if err != nil {
		return nil, err
	}
	s := &Session{
		opts:         opts,
		program:      program,
		memory:       SharedMemory(),
		profile:      opts.Profile,
		inputShapes:  make([][]int, len(program.Inputs)),
		outputShapes: make([][]int, len(program.Outputs)),
		inputs:       make([][]byte, len(program.Inputs)),
		outputDests:  make([]*tensors.Tensor, len(program.Outputs)),
		inShared:     make([]*Buffer, len(program.Inputs)),
		outShared:    make([]*Buffer, len(program.Outputs)),
	}
	for ii, t := range program.Inputs {
		s.inputShapes[ii] = slices.Clone(t.Shape)
	}
	for ii, t := range program.Outputs {
		s.outputShapes[ii] = slices.Clone(t.Shape)
	}
	if opts.DTCMSize != "" {
		s.dtcmLimit, err = humanize.ParseBytes(opts.DTCMSize)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid DTCM size %q", opts.DTCMSize)
		}
	}
	for _, option := range strings.Split(opts.Config, ",") {
		switch strings.TrimSpace(option) {
		case "":
		case "profile":
			s.profile = true
		default:
			return nil, errors.Errorf("unknown simulator option %q in %q", option, opts.Config)
		}
	}
	klog.V(1).Infof("sim: opened %q (kernel %q, %d inputs, %d outputs, DTCM %q)",
		opts.FuncName, program.Kernel, len(program.Inputs), len(program.Outputs), opts.DTCMSize)
	return s, nil
}

// Program returns the decoded program of the session.
func (s *Session) Program() *Program { return s.program }

// NumRuns returns how many times the program was run.
func (s *Session) NumRuns() int { return s.numRuns }

func (s *Session) checkAlive() error {
	if s.finalized {
		return errors.Errorf("sim: session for %q already finalized", s.opts.FuncName)
	}
	return nil
}

func (s *Session) param(isInput bool, idx int) params.ParamInfo {
	if isInput {
		return params.New(s.program.Inputs[idx].DataType, s.inputShapes[idx]...)
	}
	return params.New(s.program.Outputs[idx].DataType, s.outputShapes[idx]...)
}

// ParamInfo implements driver.Session.
func (s *Session) ParamInfo(isInput bool) ([]params.ParamInfo, error) {
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	n := len(s.program.Outputs)
	if isInput {
		n = len(s.program.Inputs)
	}
	list := make([]params.ParamInfo, n)
	for ii := range list {
		list[ii] = s.param(isInput, ii)
	}
	return list, nil
}

func (s *Session) checkCount(kind params.Kind, got, want int) error {
	if got != want {
		return errors.Errorf("sim: got %d %s buffers, program has %d", got, kind, want)
	}
	return nil
}

func copyBytes(t *tensors.Tensor) ([]byte, error) {
	var data []byte
	err := t.ConstBytes(func(b []byte) { data = slices.Clone(b) })
	return data, err
}

// SetInputs implements driver.Session.
func (s *Session) SetInputs(inputs []*tensors.Tensor) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	if err := s.checkCount(params.Input, len(inputs), len(s.program.Inputs)); err != nil {
		return err
	}
	for ii, input := range inputs {
		want := s.param(true, ii).Size
		if input.ByteSize() != want {
			return errors.Errorf("sim: input #%d has %d bytes, program expects %d", ii, input.ByteSize(), want)
		}
		data, err := copyBytes(input)
		if err != nil {
			return errors.WithMessagef(err, "sim: input #%d", ii)
		}
		s.inputs[ii] = data
	}
	return nil
}

// SetInputsWithDynamicShape implements driver.Session.
func (s *Session) SetInputsWithDynamicShape(inputs []*tensors.Tensor) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	if err := s.checkCount(params.Input, len(inputs), len(s.program.Inputs)); err != nil {
		return err
	}
	newShapes := make([][]int, len(inputs))
	newData := make([][]byte, len(inputs))
	for ii, input := range inputs {
		if want := s.program.Inputs[ii].DataType; input.DataType() != want {
			return errors.Errorf("sim: input #%d has element type %s, program expects %s", ii, input.DataType(), want)
		}
		var err error
		newData[ii], err = copyBytes(input)
		if err != nil {
			return errors.WithMessagef(err, "sim: input #%d", ii)
		}
		newShapes[ii] = slices.Clone(input.Shape().Dimensions)
	}
	s.inputShapes = newShapes
	s.inputs = newData
	s.dynamic = true
	return nil
}

// SetOutputs implements driver.Session.
func (s *Session) SetOutputs(outputs []*tensors.Tensor) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	if err := s.checkCount(params.Output, len(outputs), len(s.program.Outputs)); err != nil {
		return err
	}
	copy(s.outputDests, outputs)
	return nil
}

// Run implements driver.Session.
func (s *Session) Run() error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	start := time.Now()
	inputs := make([][]byte, len(s.program.Inputs))
	totalBytes := 0
	for ii := range inputs {
		size := s.param(true, ii).Size
		switch {
		case s.inShared[ii] != nil:
			if len(s.inShared[ii].Data) < size {
				return errors.Errorf("sim: shared buffer of input #%d has %d bytes, needs %d", ii, len(s.inShared[ii].Data), size)
			}
			inputs[ii] = s.inShared[ii].Data[:size]
		case s.inputs[ii] != nil:
			inputs[ii] = s.inputs[ii]
		default:
			return errors.Errorf("sim: input #%d of %q was not set", ii, s.opts.FuncName)
		}
		totalBytes += size
	}
	if s.dynamic {
		var err error
		s.outputShapes, err = inferOutputShapes(s.program, s.inputShapes)
		if err != nil {
			return err
		}
	}
	results := make([][]byte, len(s.program.Outputs))
	for ii := range results {
		results[ii] = make([]byte, s.param(false, ii).Size)
	}
	if err := runKernel(s.program, inputs, results); err != nil {
		return err
	}
	for ii, result := range results {
		totalBytes += len(result)
		if buf := s.outShared[ii]; buf != nil {
			if len(buf.Data) < len(result) {
				return errors.Errorf("sim: shared buffer of output #%d has %d bytes, needs %d", ii, len(buf.Data), len(result))
			}
			copy(buf.Data, result)
		}
		if dest := s.outputDests[ii]; dest != nil && dest.ByteSize() == len(result) {
			if err := dest.MutableBytes(func(data []byte) { copy(data, result) }); err != nil {
				return errors.WithMessagef(err, "sim: output #%d", ii)
			}
		}
	}
	s.results = results
	s.numRuns++
	if s.profile {
		s.profiled = append(s.profiled, runRecord{kernel: s.program.Kernel, duration: time.Since(start), bytes: totalBytes})
	}
	klog.V(2).Infof("sim: run #%d of %q done", s.numRuns, s.opts.FuncName)
	return nil
}

// GetOutputs implements driver.Session.
func (s *Session) GetOutputs(outputs []*tensors.Tensor) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	if err := s.checkCount(params.Output, len(outputs), len(s.program.Outputs)); err != nil {
		return err
	}
	if s.results == nil {
		return errors.Errorf("sim: no outputs available, %q was never run", s.opts.FuncName)
	}
	for ii, output := range outputs {
		result := s.results[ii]
		if output.ByteSize() != len(result) {
			return errors.Errorf("sim: output #%d has %d bytes, result has %d", ii, output.ByteSize(), len(result))
		}
		if err := output.MutableBytes(func(data []byte) { copy(data, result) }); err != nil {
			return errors.WithMessagef(err, "sim: output #%d", ii)
		}
	}
	return nil
}

// OutputShape implements driver.Session.
func (s *Session) OutputShape(index int) ([]int, error) {
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s.outputShapes) {
		return nil, errors.Errorf("sim: output index %d out of range, program has %d outputs", index, len(s.outputShapes))
	}
	return slices.Clone(s.outputShapes[index]), nil
}

func lookupShared[K int32 | uint64](s *Session, kind params.Kind, keys []K, want int,
	isShared func(K) bool, lookup func(K) (*Buffer, bool)) ([]*Buffer, error) {
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	if err := s.checkCount(kind, len(keys), want); err != nil {
		return nil, err
	}
	buffers := make([]*Buffer, len(keys))
	for ii, key := range keys {
		if !isShared(key) {
			continue
		}
		buf, found := lookup(key)
		if !found {
			return nil, errors.Errorf("sim: %s #%d refers to unknown shared buffer %#x", kind, ii, uint64(key))
		}
		buffers[ii] = buf
	}
	return buffers, nil
}

// SetInputSharedFDs implements driver.Session.
func (s *Session) SetInputSharedFDs(fds []int32) error {
	buffers, err := lookupShared(s, params.Input, fds, len(s.program.Inputs), driver.IsSharedFD, s.memory.LookupFD)
	if err != nil {
		return err
	}
	s.inShared = buffers
	return nil
}

// SetInputSharedPAs implements driver.Session.
func (s *Session) SetInputSharedPAs(pas []uint64) error {
	isShared := func(pa uint64) bool { return pa != driver.NotSharedInputPA }
	buffers, err := lookupShared(s, params.Input, pas, len(s.program.Inputs), isShared, s.memory.LookupPA)
	if err != nil {
		return err
	}
	s.inShared = buffers
	return nil
}

// MarkOutputSharedFDs implements driver.Session.
func (s *Session) MarkOutputSharedFDs(fds []int32) error {
	buffers, err := lookupShared(s, params.Output, fds, len(s.program.Outputs), driver.IsSharedFD, s.memory.LookupFD)
	if err != nil {
		return err
	}
	s.outShared = buffers
	return nil
}

// MarkOutputSharedPAs implements driver.Session. A new buffer is allocated for each shared output, and its
// physical address is written back into pas.
func (s *Session) MarkOutputSharedPAs(pas []uint64) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	if err := s.checkCount(params.Output, len(pas), len(s.program.Outputs)); err != nil {
		return err
	}
	buffers := make([]*Buffer, len(pas))
	var allocated uint64
	// release the buffers of this call if a later output can't be allocated: pas is left untouched.
	release := func() {
		for _, buf := range buffers {
			if buf != nil {
				s.memory.Free(buf)
			}
		}
	}
	for ii, pa := range pas {
		if pa == driver.NotSharedOutputPA {
			continue
		}
		size := s.param(false, ii).Size
		used := s.allocated + allocated
		if s.dtcmLimit > 0 && used+uint64(size) > s.dtcmLimit {
			release()
			return errors.Errorf("sim: output #%d needs %s of device memory, only %s of %s left",
				ii, humanize.Bytes(uint64(size)), humanize.Bytes(s.dtcmLimit-used), humanize.Bytes(s.dtcmLimit))
		}
		buf, err := s.memory.Allocate(size)
		if err != nil {
			release()
			return errors.WithMessagef(err, "sim: output #%d", ii)
		}
		allocated += uint64(size)
		buffers[ii] = buf
	}
	s.allocated += allocated
	for _, buf := range buffers {
		if buf != nil {
			s.owned = append(s.owned, buf)
		}
	}
	for ii, buf := range buffers {
		if buf != nil {
			pas[ii] = buf.PA
		}
	}
	s.outShared = buffers
	return nil
}

// DumpProfileData implements driver.Session. It appends the profiling data of the runs since the last call to
// the file ProfileFileName in the session work directory.
func (s *Session) DumpProfileData() error {
	if !s.profile || len(s.profiled) == 0 {
		return nil
	}
	var sb strings.Builder
	for ii, record := range s.profiled {
		fmt.Fprintf(&sb, "func=%s run=%d kernel=%s duration=%s bytes=%s\n", s.opts.FuncName,
			s.numRuns-len(s.profiled)+ii+1, record.kernel, record.duration, humanize.Bytes(uint64(record.bytes)))
	}
	fileName := filepath.Join(s.opts.WorkDir, ProfileFileName)
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "sim: failed to open profile file")
	}
	if _, err = f.WriteString(sb.String()); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "sim: failed to write profile data to %q", fileName)
	}
	s.profiled = s.profiled[:0]
	return errors.Wrapf(f.Close(), "sim: failed to close %q", fileName)
}

// Finalize implements driver.Session. It frees the shared buffers allocated by the session.
func (s *Session) Finalize() {
	if s.finalized {
		return
	}
	for _, buf := range s.owned {
		s.memory.Free(buf)
	}
	s.owned = nil
	s.finalized = true
	klog.V(1).Infof("sim: finalized session of %q after %d runs", s.opts.FuncName, s.numRuns)
}

// ShapeOf is a small helper that returns a Tensor declaration for the given shape.
func ShapeOf(shape shapes.Shape) Tensor {
	return Tensor{DataType: shape.DType.DataType(), Shape: slices.Clone(shape.Dimensions)}
}
