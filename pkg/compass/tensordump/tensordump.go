// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensordump implements the default tensor capture hook of the runtime: it saves the inputs and outputs of
// every run as NumPy .npz files, under config.Config.DumpDir.
//
// Capture is enabled with $AIPU_TVM_RUNTIME_DUMP=true (see config.EnvDump), and installed with Install.
package tensordump

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gomlx/compass/pkg/compass/config"
	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/compass/runtime"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/gomlx/compass/pkg/core/tensors/numpy"
	"github.com/gomlx/compass/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Dumper saves captured tensors. For each function and kind of argument (input or output) the captures are
// numbered from 0: "<DumpDir(funcName)>/input_0.npz", "<DumpDir(funcName)>/output_0.npz", etc.
type Dumper struct {
	cfg *config.Config

	mu       sync.Mutex
	counters map[string]int
}

// New returns a Dumper that writes under the directories of cfg.
func New(cfg *config.Config) *Dumper {
	return &Dumper{cfg: cfg, counters: make(map[string]int)}
}

// FileName returns the file of capture number n of funcName.
func (d *Dumper) FileName(funcName string, isInput bool, n int) string {
	return filepath.Join(d.cfg.DumpDir(funcName), fmt.Sprintf("%s_%d.npz", params.KindOf(isInput), n))
}

// Dump implements runtime.DumpFunc.
func (d *Dumper) Dump(funcName string, isInput bool, ts []*tensors.Tensor) error {
	d.mu.Lock()
	key := funcName + "/" + string(params.KindOf(isInput))
	n := d.counters[key]
	d.counters[key] = n + 1
	d.mu.Unlock()

	if err := fsutil.EnsureDir(d.cfg.DumpDir(funcName)); err != nil {
		return err
	}
	fileName := d.FileName(funcName, isInput, n)
	if err := numpy.ToNpzFile(ts, fileName); err != nil {
		return errors.WithMessagef(err, "failed to capture %d %s tensors of %q", len(ts), params.KindOf(isInput), funcName)
	}
	klog.V(2).Infof("captured %d %s tensors of %q to %s", len(ts), params.KindOf(isInput), funcName, fileName)
	return nil
}

// Install registers a Dumper as the runtime capture hook, if cfg.Dump is set, and returns it.
// It returns nil (and changes nothing) otherwise. A nil cfg uses config.Global().
func Install(cfg *config.Config) *Dumper {
	if cfg == nil {
		cfg = config.Global()
	}
	if !cfg.Dump {
		return nil
	}
	d := New(cfg)
	runtime.RegisterDumpFunc(d.Dump)
	klog.V(1).Infof("tensor capture enabled, writing to %s", filepath.Join(cfg.WorkDir, "dump"))
	return d
}
