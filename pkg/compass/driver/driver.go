// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package driver defines the interface of an accelerator driver session, and a registry of drivers.
//
// A driver opens a Session for one compiled program. The session reports the parameter contracts of the program,
// binds input and output buffers, runs the program and reads back the results. Drivers register themselves
// (usually in an init function) with Register, and sessions are opened with New.
//
// The software simulator in the sub-package sim registers itself as "sim": include it with
//
//	import _ "github.com/gomlx/compass/pkg/compass/driver/sim"
package driver

import (
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/compass/config"
	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Sentinel values of shared buffer descriptors, marking a parameter as "not shared".
const (
	// NotSharedInputPA marks an input as not shared in a physical address descriptor.
	NotSharedInputPA uint64 = 0

	// NotSharedOutputPA marks an output as not shared in a physical address descriptor.
	NotSharedOutputPA uint64 = math.MaxUint64
)

// IsSharedFD returns whether a file descriptor entry of a descriptor marks a shared buffer: values <= 0 mean
// "not shared", both for inputs and outputs.
func IsSharedFD(fd int32) bool { return fd > 0 }

// Session is a live handle to an accelerator execution context, opened for one compiled program.
//
// A Session is not safe for concurrent use. Tensors passed to it are borrowed for the duration of the call,
// except for buffers registered as shared, which are owned by the caller.
type Session interface {
	// ParamInfo returns the contracts of the inputs (isInput=true) or outputs of the program, reflecting the
	// current configuration of the session.
	ParamInfo(isInput bool) ([]params.ParamInfo, error)

	// SetInputs binds the inputs of the next run.
	SetInputs(inputs []*tensors.Tensor) error

	// SetInputsWithDynamicShape binds the inputs of the next run, taking their shapes as the new input shapes.
	// The shapes of the outputs are inferred during the run.
	SetInputsWithDynamicShape(inputs []*tensors.Tensor) error

	// SetOutputs binds the buffers where the next run writes the outputs.
	SetOutputs(outputs []*tensors.Tensor) error

	// Run executes the program once. It blocks until the accelerator finishes.
	Run() error

	// GetOutputs reads the outputs of the last run into the given buffers.
	GetOutputs(outputs []*tensors.Tensor) error

	// OutputShape returns the shape of output index, as computed by the last run.
	OutputShape(index int) ([]int, error)

	// SetInputSharedFDs registers OS buffer handles (file descriptors) as the storage of the inputs.
	// There is one entry per input, and values <= 0 mean "not shared".
	SetInputSharedFDs(fds []int32) error

	// SetInputSharedPAs registers device physical addresses as the storage of the inputs.
	// There is one entry per input, and NotSharedInputPA (0) means "not shared".
	SetInputSharedPAs(pas []uint64) error

	// MarkOutputSharedFDs makes the outputs be written directly into the given OS buffer handles.
	// There is one entry per output, and values <= 0 mean "not shared".
	MarkOutputSharedFDs(fds []int32) error

	// MarkOutputSharedPAs makes the outputs be written directly into device memory allocated by the session.
	// There is one entry per output, and NotSharedOutputPA (MaxUint64) means "not shared". The session writes
	// the physical address of the allocated buffer into each shared entry, to be handed to the next stage of a
	// pipeline.
	MarkOutputSharedPAs(pas []uint64) error

	// DumpProfileData flushes the profiling data of the last run, if there is any.
	DumpProfileData() error

	// Finalize releases the session. It is not used after that.
	Finalize()
}

// Options used to open a session.
type Options struct {
	// Binary is the compiled program.
	Binary []byte

	// FuncName is the name of the program's function.
	FuncName string

	// Target identifies the accelerator device.
	Target string

	// DTCMSize is the device-memory size hint.
	DTCMSize string

	// WorkDir is a directory owned by the session, for its scratch files.
	WorkDir string

	// Config holds the driver specific options: the part after the ":" of the driver configuration.
	Config string

	// Profile enables the collection of profiling data.
	Profile bool
}

// Constructor opens a new session with the given options.
type Constructor func(opts Options) (Session, error)

var (
	muRegistry             sync.Mutex
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a driver constructor under the given name.
//
// The first registered driver is the default one, used when no driver is configured.
func Register(name string, constructor Constructor) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered drivers, sorted.
func List() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ParseConfig splits a driver configuration "<driver>[:<options>]" into the driver name and its options.
// If the driver name is empty, the default (first registered) driver name is returned.
func ParseConfig(driverConfig string) (name, options string) {
	name = driverConfig
	if idx := strings.Index(driverConfig, ":"); idx != -1 {
		name = driverConfig[:idx]
		options = driverConfig[idx+1:]
	}
	if name == "" {
		muRegistry.Lock()
		name = firstRegistered
		muRegistry.Unlock()
	}
	return
}

// New opens a session for opts, using the driver selected by cfg.Driver (see ParseConfig).
//
// A nil cfg uses config.Global(). If opts.WorkDir is empty, a new unique session directory is created under
// cfg.RuntimeWorkDir(opts.FuncName). Errors are returned wrapped as compass.ErrSessionFailure.
func New(cfg *config.Config, opts Options) (Session, error) {
	if cfg == nil {
		cfg = config.Global()
	}
	muRegistry.Lock()
	numRegistered := len(registeredConstructors)
	muRegistry.Unlock()
	if numRegistered == 0 {
		return nil, errors.Wrapf(compass.ErrSessionFailure,
			`no registered drivers, maybe import the simulator with import _ "github.com/gomlx/compass/pkg/compass/driver/sim"?`)
	}
	name, driverOptions := ParseConfig(cfg.Driver)
	muRegistry.Lock()
	constructor, found := registeredConstructors[name]
	muRegistry.Unlock()
	if !found {
		return nil, errors.Wrapf(compass.ErrSessionFailure, "unknown driver %q (configuration %q), registered drivers: %v",
			name, cfg.Driver, List())
	}
	if opts.Config == "" {
		opts.Config = driverOptions
	}
	opts.Profile = opts.Profile || cfg.Profile
	if opts.WorkDir == "" {
		var err error
		opts.WorkDir, err = cfg.NewSessionDir(opts.FuncName)
		if err != nil {
			return nil, compass.SessionFailure(err, "driver %q", name)
		}
	}
	session, err := constructor(opts)
	if err != nil {
		return nil, compass.SessionFailure(err, "driver %q failed to open program %q (target %q)", name, opts.FuncName, opts.Target)
	}
	klog.V(1).Infof("driver %q opened session for %q (target %q) in %s", name, opts.FuncName, opts.Target, opts.WorkDir)
	return session, nil
}
