// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/compass/runtime"
	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/shapes"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/gomlx/compass/pkg/core/tensors/numpy"
	"github.com/gomlx/compass/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

type runOptions struct {
	inputsFile string
	dynamic    bool
	repeat     int
	progress   bool
}

type runResult struct {
	inputs, outputs []*tensors.Tensor
	durations       []time.Duration
}

// median duration of the runs.
func (r *runResult) median() time.Duration {
	if len(r.durations) == 0 {
		return 0
	}
	sorted := slices.Clone(r.durations)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}

// programOf returns the program of the modules that hold one.
func programOf(module runtime.Module) (runtime.Program, error) {
	switch m := module.(type) {
	case *runtime.ExecutionModule:
		return m.Program(), nil
	case *runtime.Binary:
		return m.Program(), nil
	}
	return runtime.Program{}, errors.Errorf("module %q holds no program", module.TypeKey())
}

// zeroTensor returns a tensor of zeros that satisfies contract.
func zeroTensor(contract params.ParamInfo) (*tensors.Tensor, error) {
	dtype := contract.DataType.DType()
	if dtype == dtypes.InvalidDType {
		return nil, errors.Errorf("no tensor type for element type %s", contract.DataType)
	}
	if contract.DataType.Lanes == 1 {
		return tensors.FromShape(shapes.Make(dtype, contract.Shape...)), nil
	}
	return tensors.FromExternal(contract.DataType, contract.Shape, make([]byte, contract.Size), 0, nil)
}

func zeroTensors(kind params.Kind, contracts []params.ParamInfo) ([]*tensors.Tensor, error) {
	ts := make([]*tensors.Tensor, len(contracts))
	for ii, contract := range contracts {
		var err error
		if ts[ii], err = zeroTensor(contract); err != nil {
			return nil, errors.WithMessagef(err, "allocating %s #%d", kind, ii)
		}
	}
	return ts, nil
}

// readInputs from inputsFile, or zeros following the input contracts if it is empty.
func readInputs(m *runtime.ExecutionModule, inputsFile string) ([]*tensors.Tensor, error) {
	if inputsFile == "" {
		return zeroTensors(params.Input, m.InputParams())
	}
	inputs, err := numpy.FromNpzFile(inputsFile)
	if err != nil {
		return nil, err
	}
	return inputs, nil
}

// run the module opts.repeat times. The outputs of the last run are returned.
func run(m *runtime.ExecutionModule, opts runOptions) (*runResult, error) {
	res := &runResult{}
	var err error
	if res.inputs, err = readInputs(m, opts.inputsFile); err != nil {
		return nil, err
	}
	if !opts.dynamic {
		if res.outputs, err = zeroTensors(params.Output, m.OutputParams()); err != nil {
			return nil, err
		}
	}

	var bar *progressbar.ProgressBar
	if opts.progress {
		bar = progressbar.NewOptions(opts.repeat,
			progressbar.OptionSetDescription(fmt.Sprintf("Running %q", m.Program().FuncName)),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("runs"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish(),
		)
	}
	for range opts.repeat {
		start := time.Now()
		if opts.dynamic {
			res.outputs, err = m.DynamicRun(res.inputs...)
		} else {
			err = m.Run(append(slices.Clone(res.inputs), res.outputs...)...)
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "run #%d", len(res.durations))
		}
		res.durations = append(res.durations, time.Since(start))
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return res, nil
}

// saveOutputs as "<dir>/output_<n>.npy" files, and returns the file names.
func saveOutputs(dir string, outputs []*tensors.Tensor) ([]string, error) {
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	fileNames := make([]string, len(outputs))
	for ii, output := range outputs {
		fileNames[ii] = filepath.Join(dir, fmt.Sprintf("output_%d.npy", ii))
		if err := numpy.ToNpyFile(output, fileNames[ii]); err != nil {
			return nil, err
		}
	}
	return fileNames, nil
}
