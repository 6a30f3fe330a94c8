// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package runtime implements the execution module of a compiled accelerator program: it owns the program and a
// driver session opened for it, validates every call's arguments against the parameter contracts reported by the
// session, and exposes the operations of the program by name (see GetFunction and OpType).
//
// It also implements the Binary module, a handle to the program alone that can be stored or forwarded without
// opening a session, and the persistence of modules (Save and Load).
//
// Example:
//
//	m, err := runtime.New(runtime.NewProgram(bin, "main", "X1_1204", ""))
//	if err != nil { ... }
//	defer m.Finalize()
//	err = m.Run(input, output)
package runtime

import (
	"io"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/compass/config"
	"github.com/gomlx/compass/pkg/compass/driver"
	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/shapes"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ExecutionModule owns a Program, the driver session opened for it and the parameter contracts of its inputs and
// outputs.
//
// It is not safe for concurrent use: callers must serialize the calls on one instance.
type ExecutionModule struct {
	program Program
	cfg     *config.Config
	session driver.Session
	handle  *handle

	// finalized is set when the owner dropped its reference.
	finalized bool

	inputs, outputs []params.ParamInfo

	dumpFn DumpFunc
}

var _ Module = (*ExecutionModule)(nil)

// Option for New, Load and Binary.Materialize.
type Option func(o *options)

type options struct {
	cfg          *config.Config
	driverConfig *string
	session      driver.Session
}

// WithConfig uses cfg instead of config.Global().
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithDriver selects the driver, in the format "<driver>[:<options>]", overriding the configuration.
func WithDriver(driverConfig string) Option {
	return func(o *options) { o.driverConfig = &driverConfig }
}

// WithSession uses an already opened session, instead of opening one with the driver registry.
// The module takes ownership of the session.
func WithSession(session driver.Session) Option {
	return func(o *options) { o.session = session }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = config.Global()
	}
	if o.driverConfig != nil {
		o.cfg = o.cfg.Clone()
		o.cfg.Driver = *o.driverConfig
	}
	return o
}

// New opens a session for the program and derives its parameter contracts.
//
// The program is copied. The capture hook registered with RegisterDumpFunc at this time is used.
func New(program Program, opts ...Option) (*ExecutionModule, error) {
	o := buildOptions(opts)
	m := &ExecutionModule{
		program: program.Clone(),
		cfg:     o.cfg,
		session: o.session,
	}
	if m.session == nil {
		var err error
		m.session, err = driver.New(o.cfg, m.program.driverOptions())
		if err != nil {
			return nil, err
		}
	}
	if err := m.init(); err != nil {
		m.session.Finalize()
		return nil, err
	}
	return m, nil
}

func (m *ExecutionModule) init() error {
	var err error
	if m.inputs, err = params.Derive(m.session, true); err != nil {
		return errors.WithMessagef(err, "initializing %q", m.program.FuncName)
	}
	if m.outputs, err = params.Derive(m.session, false); err != nil {
		return errors.WithMessagef(err, "initializing %q", m.program.FuncName)
	}
	m.dumpFn = registeredDumpFunc()
	session := m.session
	funcName := m.program.FuncName
	m.handle = newHandle(func() {
		session.Finalize()
		klog.V(1).Infof("released session of %q", funcName)
	})
	klog.V(1).Infof("initialized %s: %d inputs, %d outputs", m.program, len(m.inputs), len(m.outputs))
	return nil
}

// Finalize drops the owner's reference to the session. The session is released once no Function returned by
// GetFunction holds it either: until then the module remains usable through those functions.
// It is safe to call more than once.
func (m *ExecutionModule) Finalize() {
	if m == nil || m.handle == nil {
		return
	}
	if m.finalized {
		klog.Warningf("ExecutionModule(%q).Finalize() called more than once", m.program.FuncName)
		return
	}
	m.finalized = true
	m.handle.drop()
}

// liveSession returns the session, if it was not released yet.
func (m *ExecutionModule) liveSession() (driver.Session, error) {
	if m.handle == nil || !m.handle.alive() {
		return nil, errors.Wrapf(compass.ErrSessionFailure, "module %q already finalized", m.program.FuncName)
	}
	return m.session, nil
}

// Program returns a copy of the program owned by the module.
func (m *ExecutionModule) Program() Program { return m.program.Clone() }

// Config returns the configuration the module was created with.
func (m *ExecutionModule) Config() *config.Config { return m.cfg }

// InputParams returns a copy of the current input contracts.
func (m *ExecutionModule) InputParams() []params.ParamInfo { return params.CloneAll(m.inputs) }

// OutputParams returns a copy of the current output contracts.
func (m *ExecutionModule) OutputParams() []params.ParamInfo { return params.CloneAll(m.outputs) }

// TypeKey implements Module.
func (m *ExecutionModule) TypeKey() string { return ExecutionModuleTypeKey }

// PropertyMask implements Module.
func (m *ExecutionModule) PropertyMask() PropertyMask { return BinarySerializable | Runnable }

// SaveToBinary implements Module: it writes the program only. Contracts are derived again when loading.
func (m *ExecutionModule) SaveToBinary(w io.Writer) error {
	return writeProgram(w, m.program)
}

// LoadExecutionModule reads a program written by ExecutionModule.SaveToBinary (or Binary.SaveToBinary) and opens
// a new session for it.
func LoadExecutionModule(r io.Reader, opts ...Option) (*ExecutionModule, error) {
	program, err := readProgram(r)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading %s", ExecutionModuleTypeKey)
	}
	return New(program, opts...)
}

// checkArgs verifies that the arguments can be handed to the driver: contiguous, no byte offset and single lane.
func checkArgs(kind params.Kind, args []*tensors.Tensor) error {
	for ii, arg := range args {
		switch {
		case arg == nil:
			return compass.ContractViolationf("%s #%d is nil", kind, ii)
		case !arg.IsContiguous():
			return compass.ContractViolationf("%s #%d %s is not contiguous (strides %v)", kind, ii, arg.Shape(), arg.Strides())
		case arg.ByteOffset() != 0:
			return compass.ContractViolationf("%s #%d has byte offset %d, only 0 is supported", kind, ii, arg.ByteOffset())
		case arg.Lanes() != 1:
			return compass.ContractViolationf("%s #%d has %d lanes, only single lane elements are supported", kind, ii, arg.Lanes())
		}
	}
	return nil
}

// SetInputs validates the inputs against the input contracts and binds them in the session.
func (m *ExecutionModule) SetInputs(inputs ...*tensors.Tensor) error {
	session, err := m.liveSession()
	if err != nil {
		return err
	}
	if err := checkArgs(params.Input, inputs); err != nil {
		return err
	}
	if err := params.Validate(params.Input, inputs, m.inputs); err != nil {
		return err
	}
	return compass.SessionFailure(session.SetInputs(inputs), "%q failed to set inputs", m.program.FuncName)
}

// SetOutputs validates the outputs against the output contracts and binds them as the destination buffers.
func (m *ExecutionModule) SetOutputs(outputs ...*tensors.Tensor) error {
	session, err := m.liveSession()
	if err != nil {
		return err
	}
	if err := checkArgs(params.Output, outputs); err != nil {
		return err
	}
	if err := params.Validate(params.Output, outputs, m.outputs); err != nil {
		return err
	}
	return compass.SessionFailure(session.SetOutputs(outputs), "%q failed to set outputs", m.program.FuncName)
}

// Execute runs the program once with the bound inputs. It blocks until the accelerator finishes.
func (m *ExecutionModule) Execute() error {
	session, err := m.liveSession()
	if err != nil {
		return err
	}
	klog.V(2).Infof("executing %q", m.program.FuncName)
	return compass.SessionFailure(session.Run(), "%q failed to execute", m.program.FuncName)
}

// GetOutputs validates the outputs against the output contracts and reads the results of the last run into them.
// Then the outputs are captured (if a capture hook is registered) and the profiling data is flushed.
func (m *ExecutionModule) GetOutputs(outputs ...*tensors.Tensor) error {
	if err := checkArgs(params.Output, outputs); err != nil {
		return err
	}
	if err := params.Validate(params.Output, outputs, m.outputs); err != nil {
		return err
	}
	return m.getOutputs(outputs)
}

// getOutputs reads the outputs without validation, captures them and flushes the profiling data.
func (m *ExecutionModule) getOutputs(outputs []*tensors.Tensor) error {
	session, err := m.liveSession()
	if err != nil {
		return err
	}
	if err := session.GetOutputs(outputs); err != nil {
		return compass.SessionFailure(err, "%q failed to get outputs", m.program.FuncName)
	}
	m.dumpTensors(outputs, false)
	return compass.SessionFailure(session.DumpProfileData(), "%q failed to dump profile data", m.program.FuncName)
}

// ParamInfo returns the contract of input (isInput=true) or output number index.
func (m *ExecutionModule) ParamInfo(index int, isInput bool) (params.ParamInfo, error) {
	list := m.outputs
	if isInput {
		list = m.inputs
	}
	if index < 0 || index >= len(list) {
		return params.ParamInfo{}, compass.RangeViolationf("%s index %d out of range, %q has %d %ss",
			params.KindOf(isInput), index, m.program.FuncName, len(list), params.KindOf(isInput))
	}
	return list[index].Clone(), nil
}

// Run takes the inputs followed by the outputs, validates both against their contracts and then, in sequence,
// captures the inputs, binds them, executes the program and reads the outputs (see GetOutputs).
//
// Nothing is rolled back if a later step fails.
func (m *ExecutionModule) Run(args ...*tensors.Tensor) error {
	session, err := m.liveSession()
	if err != nil {
		return err
	}
	numIn, numOut := len(m.inputs), len(m.outputs)
	if len(args) != numIn+numOut {
		return compass.ContractViolationf("%q takes %d inputs and %d outputs, got %d arguments",
			m.program.FuncName, numIn, numOut, len(args))
	}
	inputs, outputs := args[:numIn], args[numIn:]
	if err := checkArgs(params.Input, inputs); err != nil {
		return err
	}
	if err := checkArgs(params.Output, outputs); err != nil {
		return err
	}
	if err := params.Validate(params.Input, inputs, m.inputs); err != nil {
		return err
	}
	if err := params.Validate(params.Output, outputs, m.outputs); err != nil {
		return err
	}
	m.dumpTensors(inputs, true)
	if err := session.SetInputs(inputs); err != nil {
		return compass.SessionFailure(err, "%q failed to set inputs", m.program.FuncName)
	}
	if err := m.Execute(); err != nil {
		return err
	}
	return m.getOutputs(outputs)
}

// UnrestrictedRun is like Run, but it doesn't validate the arguments against the contracts: the caller takes
// responsibility for them. Only the number of arguments is checked against numInputs+numOutputs.
func (m *ExecutionModule) UnrestrictedRun(numInputs, numOutputs int, args ...*tensors.Tensor) error {
	session, err := m.liveSession()
	if err != nil {
		return err
	}
	if numInputs < 0 || numOutputs < 0 || numInputs+numOutputs != len(args) {
		return compass.ContractViolationf("unrestricted run of %q with %d inputs and %d outputs, got %d arguments",
			m.program.FuncName, numInputs, numOutputs, len(args))
	}
	inputs, outputs := args[:numInputs], args[numInputs:]
	if err := checkArgs(params.Input, inputs); err != nil {
		return err
	}
	if err := checkArgs(params.Output, outputs); err != nil {
		return err
	}
	if err := session.SetInputs(inputs); err != nil {
		return compass.SessionFailure(err, "%q failed to set inputs", m.program.FuncName)
	}
	if err := m.Execute(); err != nil {
		return err
	}
	return m.getOutputs(outputs)
}

// DynamicRun binds inputs whose shapes may differ from the current contracts (only the element types are
// checked), executes the program and derives the input and output contracts again. It returns one newly
// allocated tensor per output, shaped as reported by the session.
func (m *ExecutionModule) DynamicRun(inputs ...*tensors.Tensor) ([]*tensors.Tensor, error) {
	session, err := m.liveSession()
	if err != nil {
		return nil, err
	}
	if err := checkArgs(params.Input, inputs); err != nil {
		return nil, err
	}
	if err := params.ValidateDTypes(params.Input, inputs, m.inputs); err != nil {
		return nil, err
	}
	if err := session.SetInputsWithDynamicShape(inputs); err != nil {
		return nil, compass.SessionFailure(err, "%q failed to set inputs with dynamic shapes", m.program.FuncName)
	}
	if err := m.Execute(); err != nil {
		return nil, err
	}
	newInputs, err := params.Derive(session, true)
	if err != nil {
		return nil, err
	}
	newOutputs, err := params.Derive(session, false)
	if err != nil {
		return nil, err
	}
	m.inputs, m.outputs = newInputs, newOutputs

	outputs := make([]*tensors.Tensor, len(m.outputs))
	for ii, contract := range m.outputs {
		dims, err := session.OutputShape(ii)
		if err != nil {
			return nil, compass.SessionFailure(err, "%q failed to report the shape of output #%d", m.program.FuncName, ii)
		}
		outputs[ii], err = allocateOutput(contract, dims)
		if err != nil {
			return nil, errors.WithMessagef(err, "%q output #%d", m.program.FuncName, ii)
		}
	}
	if err := m.getOutputs(outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

// allocateOutput returns a new tensor with the element type of the contract and the given dimensions, which must
// agree with the contract's size.
func allocateOutput(contract params.ParamInfo, dims []int) (*tensors.Tensor, error) {
	dtype := contract.DataType.DType()
	if dtype == dtypes.InvalidDType || contract.DataType.Lanes != 1 {
		return nil, compass.ContractViolationf("can't allocate output with element type %s", contract.DataType)
	}
	for _, dim := range dims {
		if dim < 0 {
			return nil, errors.Wrapf(compass.ErrSessionFailure, "session reported invalid output shape %v", dims)
		}
	}
	shape := shapes.Make(dtype, dims...)
	if shape.ByteSize() != contract.Size {
		return nil, errors.Wrapf(compass.ErrSessionFailure, "session reported output shape %v (%d bytes), inconsistent with its contract %s",
			dims, shape.ByteSize(), contract)
	}
	return tensors.FromShape(shape), nil
}
