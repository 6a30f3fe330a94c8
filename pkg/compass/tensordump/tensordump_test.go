// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensordump

import (
	"testing"

	"github.com/gomlx/compass/pkg/compass/config"
	"github.com/gomlx/compass/pkg/compass/driver/sim"
	"github.com/gomlx/compass/pkg/compass/runtime"
	"github.com/gomlx/compass/pkg/core/dtypes"
	"github.com/gomlx/compass/pkg/core/shapes"
	"github.com/gomlx/compass/pkg/core/tensors"
	"github.com/gomlx/compass/pkg/core/tensors/numpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstall(t *testing.T) {
	cfg := &config.Config{WorkDir: t.TempDir(), Driver: sim.Name}
	assert.Nil(t, Install(cfg), "capture disabled")

	cfg.Dump = true
	d := Install(cfg)
	require.NotNil(t, d)
	defer runtime.RegisterDumpFunc(nil)

	f32 := sim.ShapeOf(shapes.Make(dtypes.Float32, 2))
	binary := sim.MustEncode(sim.NewProgram(sim.KernelReverse, []sim.Tensor{f32}, []sim.Tensor{f32}))
	m, err := runtime.New(runtime.NewProgram(binary, "dumped", "X1_1204", ""), runtime.WithConfig(cfg))
	require.NoError(t, err)
	defer m.Finalize()

	input := tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)
	output := tensors.FromShape(shapes.Make(dtypes.Float32, 2))
	require.NoError(t, m.Run(input, output))
	require.NoError(t, m.Run(input, output))

	inputs, err := numpy.FromNpzFile(d.FileName("dumped", true, 0))
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, []float32{1, 2}, tensors.MustCopyFlatData[float32](inputs[0]))

	outputs, err := numpy.FromNpzFile(d.FileName("dumped", false, 1))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, []float32{2, 1}, tensors.MustCopyFlatData[float32](outputs[0]))

	assert.NoFileExists(t, d.FileName("dumped", false, 2))
}
