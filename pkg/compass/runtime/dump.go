// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"sync"

	"github.com/gomlx/compass/pkg/compass/params"
	"github.com/gomlx/compass/pkg/core/tensors"
	"k8s.io/klog/v2"
)

// DumpFunc captures the input (isInput=true) or output tensors of a run of the program named funcName.
//
// The tensors are only valid during the call.
type DumpFunc func(funcName string, isInput bool, tensors []*tensors.Tensor) error

var (
	muDump   sync.Mutex
	dumpFunc DumpFunc
)

// RegisterDumpFunc sets the process-wide capture hook, and returns the previous one. A nil fn disables capture.
//
// Modules pick up the hook registered when they are created (or loaded).
func RegisterDumpFunc(fn DumpFunc) (previous DumpFunc) {
	muDump.Lock()
	defer muDump.Unlock()
	previous = dumpFunc
	dumpFunc = fn
	return
}

func registeredDumpFunc() DumpFunc {
	muDump.Lock()
	defer muDump.Unlock()
	return dumpFunc
}

// dumpTensors calls the capture hook, if there is one. Failures are logged and don't fail the run.
func (m *ExecutionModule) dumpTensors(ts []*tensors.Tensor, isInput bool) {
	if m.dumpFn == nil {
		return
	}
	if err := m.dumpFn(m.program.FuncName, isInput, ts); err != nil {
		klog.Errorf("failed to capture %s tensors of %q: %+v", params.KindOf(isInput), m.program.FuncName, err)
	}
}
