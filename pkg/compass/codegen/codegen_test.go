// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package codegen

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/compass/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(n int) []byte {
	data := make([]byte, n)
	for ii := range data {
		data[ii] = byte(ii)
	}
	return data
}

func TestGenerateEmbedded(t *testing.T) {
	m := New(runtime.NewProgram(sequence(20), "tvmgen_default_aipu_main", "X1_1204", ""))
	src := m.Source()
	assert.True(t, strings.HasPrefix(src, "#include \"tvm/runtime/c_runtime_api.h\"\n"+
		"#include \"tvm/runtime/c_backend_api.h\"\n"+
		"#include \"aipu_driver_wrapper.h\"\n"+
		"#ifdef __cplusplus\nextern \"C\"\n#endif\n"))
	want := "uint8_t gbin[20] = {\n" +
		"0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, \n" +
		"0x10, 0x11, 0x12, 0x13};\n"
	assert.Contains(t, src, want)
	assert.NotContains(t, src, "extern void* gbin")
	assert.Contains(t, src, "TVM_DLL int32_t tvmgen_default_aipu_main(uint8_t* input_buffer_var, uint8_t* output_buffer_var) {\n")
	assert.Contains(t, src, "  graph_info.graph_addr = gbin;\n")
	assert.True(t, strings.HasSuffix(src, "  return aipu_result != AIPU_RUN_RESULT_PASS;\n}\n"))

	// Exactly 16 entries: the last line break comes right after the last entry.
	m = New(runtime.NewProgram(sequence(16), "f", "X1_1204", ""))
	assert.Contains(t, m.Source(), "0x0e, 0x0f\n};\n")
	assert.Equal(t, 16, strings.Count(m.Source(), "0x"))
}

func TestGenerateExternal(t *testing.T) {
	m := New(runtime.NewProgram(sequence(4), "f", "X2_1204", ""))
	src := m.Source()
	assert.Contains(t, src, "#endif\nextern void* gbin;\nTVM_DLL int32_t f(")
	assert.NotContains(t, src, "uint8_t gbin[")
	assert.False(t, EmbedsBinary("X2_1204MP3"))
	assert.True(t, EmbedsBinary("X1_1204"))
}

func TestModule(t *testing.T) {
	m := New(runtime.NewProgram(sequence(4), "f", "X1_1204", ""))
	assert.Equal(t, runtime.CodeGenTypeKey, m.TypeKey())
	assert.True(t, m.PropertyMask().Has(runtime.DSOExportable))
	assert.False(t, m.PropertyMask().Has(runtime.BinarySerializable))
	assert.Equal(t, Format, m.FileFormat())

	var buf bytes.Buffer
	require.ErrorIs(t, m.SaveToBinary(&buf), compass.ErrSerialization)
	require.ErrorIs(t, runtime.Save(&buf, m), compass.ErrSerialization)
	assert.Zero(t, buf.Len())

	fn, found := m.GetFunction(GetFuncNamesFunc)
	require.True(t, found)
	names, err := fn.Call()
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, names)
	_, err = fn.Call(1)
	require.ErrorIs(t, err, compass.ErrContractViolation)

	_, found = m.GetFunction("compass_run")
	assert.False(t, found)
}

func TestSaveToFile(t *testing.T) {
	dir := t.TempDir()
	binary := sequence(8)

	m := New(runtime.NewProgram(binary, "f", "X1_1204", ""))
	fileName := filepath.Join(dir, "lib0.c")
	require.NoError(t, m.SaveToFile(fileName, ""))
	contents, err := os.ReadFile(fileName)
	require.NoError(t, err)
	assert.Equal(t, m.Source(), string(contents))
	assert.NoFileExists(t, filepath.Join(dir, ExternalBinaryFileName))

	require.ErrorIs(t, m.SaveToFile(filepath.Join(dir, "lib0.o"), ""), compass.ErrSerialization)
	require.ErrorIs(t, m.SaveToFile(filepath.Join(dir, "lib0.c"), "cc"), compass.ErrSerialization)
	require.NoError(t, m.SaveToFile(filepath.Join(dir, "lib0.txt"), "c"))

	x2 := New(runtime.NewProgram(binary, "f", "X2_1204", ""))
	x2Dir := filepath.Join(dir, "x2")
	require.NoError(t, os.Mkdir(x2Dir, 0o755))
	require.NoError(t, x2.SaveToFile(filepath.Join(x2Dir, "lib0.c"), ""))
	saved, err := os.ReadFile(filepath.Join(x2Dir, ExternalBinaryFileName))
	require.NoError(t, err)
	assert.Equal(t, binary, saved)

	var empty BareMetal
	require.ErrorIs(t, empty.SaveToFile(filepath.Join(dir, "empty.c"), ""), compass.ErrSerialization)
	assert.NoFileExists(t, filepath.Join(dir, "empty.c"))
}
