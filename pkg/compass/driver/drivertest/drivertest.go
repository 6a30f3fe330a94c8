// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package drivertest provides a fake driver.Session that records the calls it receives, for tests.
package drivertest

import (
	"slices"

	"github.com/gomlx/compass/pkg/compass/driver"
	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Names of the recorded methods.
const (
	ParamInfo                 = "ParamInfo"
	SetInputs                 = "SetInputs"
	SetInputsWithDynamicShape = "SetInputsWithDynamicShape"
	SetOutputs                = "SetOutputs"
	Run                       = "Run"
	GetOutputs                = "GetOutputs"
	OutputShape               = "OutputShape"
	SetInputSharedFDs         = "SetInputSharedFDs"
	SetInputSharedPAs         = "SetInputSharedPAs"
	MarkOutputSharedFDs       = "MarkOutputSharedFDs"
	MarkOutputSharedPAs       = "MarkOutputSharedPAs"
	DumpProfileData           = "DumpProfileData"
	Finalize                  = "Finalize"
)

// Session is a fake driver.Session. Configure its exported fields before use.
type Session struct {
	// Inputs and Outputs are the contracts reported by ParamInfo.
	Inputs, Outputs []params.ParamInfo

	// DynamicOutputs, if set, replace Outputs after a Run that follows SetInputsWithDynamicShape.
	DynamicOutputs []params.ParamInfo

	// Results holds the bytes written by GetOutputs into each output. If nil (or shorter than the output)
	// the output is filled with FillByte.
	Results  [][]byte
	FillByte byte

	// Calls lists, in order, the names of the methods called, except ParamInfo and OutputShape.
	Calls []string

	// Arguments received.
	BoundInputs, BoundOutputs      []*tensors.Tensor
	InputFDs, OutputFDs            []int32
	InputPAs, OutputPAs            []uint64
	NumParamQueries, NumFinalized int

	// NextPA is the first physical address handed out by MarkOutputSharedPAs.
	NextPA uint64

	errs   map[string]error
	panics map[string]any

	dynamic bool
}

var _ driver.Session = (*Session)(nil)

// New returns a fake session with the given contracts.
func New(inputs, outputs []params.ParamInfo) *Session {
	return &Session{
		Inputs:  params.CloneAll(inputs),
		Outputs: params.CloneAll(outputs),
		NextPA:  0x8000_0000,
	}
}

// Fail makes method return err from now on. A nil err clears it.
func (s *Session) Fail(method string, err error) {
	if s.errs == nil {
		s.errs = make(map[string]error)
	}
	if err == nil {
		delete(s.errs, method)
		return
	}
	s.errs[method] = err
}

// Panic makes method panic with value from now on.
func (s *Session) Panic(method string, value any) {
	if s.panics == nil {
		s.panics = make(map[string]any)
	}
	s.panics[method] = value
}

// Reset clears the recorded calls.
func (s *Session) Reset() {
	s.Calls = nil
}

// Called returns whether method was called.
func (s *Session) Called(method string) bool {
	return slices.Contains(s.Calls, method)
}

func (s *Session) record(method string) error {
	s.Calls = append(s.Calls, method)
	return s.check(method)
}

func (s *Session) check(method string) error {
	if value, found := s.panics[method]; found {
		panic(value)
	}
	return s.errs[method]
}

// ParamInfo implements driver.Session.
func (s *Session) ParamInfo(isInput bool) ([]params.ParamInfo, error) {
	s.NumParamQueries++
	if err := s.check(ParamInfo); err != nil {
		return nil, err
	}
	if isInput {
		return params.CloneAll(s.Inputs), nil
	}
	return params.CloneAll(s.Outputs), nil
}

// SetInputs implements driver.Session.
func (s *Session) SetInputs(inputs []*tensors.Tensor) error {
	s.BoundInputs = slices.Clone(inputs)
	return s.record(SetInputs)
}

// SetInputsWithDynamicShape implements driver.Session. The input contracts are replaced by the arguments'.
func (s *Session) SetInputsWithDynamicShape(inputs []*tensors.Tensor) error {
	if err := s.record(SetInputsWithDynamicShape); err != nil {
		return err
	}
	s.BoundInputs = slices.Clone(inputs)
	s.Inputs = make([]params.ParamInfo, len(inputs))
	for ii, input := range inputs {
		s.Inputs[ii] = params.New(input.DataType(), input.Shape().Dimensions...)
	}
	s.dynamic = true
	return nil
}

// SetOutputs implements driver.Session.
func (s *Session) SetOutputs(outputs []*tensors.Tensor) error {
	s.BoundOutputs = slices.Clone(outputs)
	return s.record(SetOutputs)
}

// Run implements driver.Session.
func (s *Session) Run() error {
	if err := s.record(Run); err != nil {
		return err
	}
	if s.dynamic && s.DynamicOutputs != nil {
		s.Outputs = params.CloneAll(s.DynamicOutputs)
	}
	s.dynamic = false
	return nil
}

// GetOutputs implements driver.Session: it fills the outputs with Results or FillByte.
func (s *Session) GetOutputs(outputs []*tensors.Tensor) error {
	if err := s.record(GetOutputs); err != nil {
		return err
	}
	for ii, output := range outputs {
		err := output.MutableBytes(func(data []byte) {
			var result []byte
			if ii < len(s.Results) {
				result = s.Results[ii]
			}
			n := copy(data, result)
			for pos := n; pos < len(data); pos++ {
				data[pos] = s.FillByte
			}
		})
		if err != nil {
			return errors.WithMessagef(err, "drivertest: output #%d", ii)
		}
	}
	return nil
}

// OutputShape implements driver.Session.
func (s *Session) OutputShape(index int) ([]int, error) {
	if err := s.check(OutputShape); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s.Outputs) {
		return nil, errors.Errorf("drivertest: output index %d out of range", index)
	}
	return slices.Clone(s.Outputs[index].Shape), nil
}

// SetInputSharedFDs implements driver.Session.
func (s *Session) SetInputSharedFDs(fds []int32) error {
	s.InputFDs = slices.Clone(fds)
	return s.record(SetInputSharedFDs)
}

// SetInputSharedPAs implements driver.Session.
func (s *Session) SetInputSharedPAs(pas []uint64) error {
	s.InputPAs = slices.Clone(pas)
	return s.record(SetInputSharedPAs)
}

// MarkOutputSharedFDs implements driver.Session.
func (s *Session) MarkOutputSharedFDs(fds []int32) error {
	s.OutputFDs = slices.Clone(fds)
	return s.record(MarkOutputSharedFDs)
}

// MarkOutputSharedPAs implements driver.Session: shared entries get consecutive addresses starting at NextPA.
func (s *Session) MarkOutputSharedPAs(pas []uint64) error {
	s.OutputPAs = slices.Clone(pas)
	if err := s.record(MarkOutputSharedPAs); err != nil {
		return err
	}
	for ii, pa := range pas {
		if pa != driver.NotSharedOutputPA {
			pas[ii] = s.NextPA
			s.NextPA += 0x1000
		}
	}
	return nil
}

// DumpProfileData implements driver.Session.
func (s *Session) DumpProfileData() error {
	return s.record(DumpProfileData)
}

// Finalize implements driver.Session.
func (s *Session) Finalize() {
	s.NumFinalized++
	s.Calls = append(s.Calls, Finalize)
}
