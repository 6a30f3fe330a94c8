// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package codegen generates the C source that embeds a compiled AIPU program in baremetal firmware.
//
// The generated translation unit defines one entry point, named after the program's function, that starts the
// program once on the given input and output buffers, using the baremetal driver wrapper ("aipu_driver_wrapper.h").
//
// For X2 targets the program is not embedded: the source declares "extern void* gbin" and SaveToFile writes
// the program next to the source, as "aipu.bin", to be linked separately.
package codegen

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/compass/runtime"
	"github.com/gomlx/compass/pkg/support/fsutil"
	"k8s.io/klog/v2"
)

const (
	// Format is the only file format BareMetal can be saved to.
	Format = "c"

	// GetFuncNamesFunc returns the names of the entry points defined in the generated source.
	GetFuncNamesFunc = "get_func_names"

	// ExternalBinaryFileName is the file, in the directory of the generated source, the program is saved to
	// for targets that don't embed it.
	ExternalBinaryFileName = "aipu.bin"

	// bytesPerLine of the embedded program array.
	bytesPerLine = 16
)

// BareMetal is the module of a program compiled for baremetal targets. It is DSO exportable only: it can't be
// run or serialized, only saved as source.
type BareMetal struct {
	program runtime.Program
	source  string
}

var _ runtime.Module = (*BareMetal)(nil)

// New generates the source for program. The program's binary is copied.
func New(program runtime.Program) *BareMetal {
	m := &BareMetal{program: program.Clone()}
	m.source = generate(m.program)
	klog.V(1).Infof("generated %d bytes of C source for %s", len(m.source), m.program)
	return m
}

// EmbedsBinary returns whether the program is embedded in the source, as opposed to linked from ExternalBinaryFileName.
func EmbedsBinary(target string) bool {
	return !strings.HasPrefix(target, "X2")
}

func generate(p runtime.Program) string {
	var sb strings.Builder
	sb.WriteString("#include \"tvm/runtime/c_runtime_api.h\"\n")
	sb.WriteString("#include \"tvm/runtime/c_backend_api.h\"\n")
	sb.WriteString("#include \"aipu_driver_wrapper.h\"\n")
	sb.WriteString("#ifdef __cplusplus\n")
	sb.WriteString("extern \"C\"\n")
	sb.WriteString("#endif\n")

	if EmbedsBinary(p.Target) {
		fmt.Fprintf(&sb, "uint8_t gbin[%d] = {\n", len(p.Binary))
		for ii, b := range p.Binary {
			fmt.Fprintf(&sb, "0x%02x", b)
			if ii != len(p.Binary)-1 {
				sb.WriteString(", ")
			}
			if (ii+1)%bytesPerLine == 0 {
				sb.WriteString("\n")
			}
		}
		sb.WriteString("};\n")
	} else {
		sb.WriteString("extern void* gbin;\n")
	}

	fmt.Fprintf(&sb, "TVM_DLL int32_t %s(uint8_t* input_buffer_var, uint8_t* output_buffer_var) {\n", p.FuncName)
	sb.WriteString("  struct graph_run_info graph_info = {0};\n")
	sb.WriteString("  aipu_run_result_t aipu_result = AIPU_RUN_ERROR;\n\n")
	sb.WriteString("  graph_info.graph_addr = gbin;\n")
	sb.WriteString("  graph_info.input0_addr = input_buffer_var;\n")
	sb.WriteString("  graph_info.output_addr = output_buffer_var;\n")
	sb.WriteString("  graph_info.run_times = 1;\n")
	sb.WriteString("  graph_info.output_type = NOT_BATCH_OUTPUT;\n\n")
	sb.WriteString("  aipu_result = aipu_start_single_graph(&graph_info);\n\n")
	sb.WriteString("  return aipu_result != AIPU_RUN_RESULT_PASS;\n")
	sb.WriteString("}\n")
	return sb.String()
}

// Program returns a copy of the program the source was generated for.
func (m *BareMetal) Program() runtime.Program { return m.program.Clone() }

// Source returns the generated C source.
func (m *BareMetal) Source() string { return m.source }

// FuncNames returns the entry points defined in the source.
func (m *BareMetal) FuncNames() []string { return []string{m.program.FuncName} }

// FileFormat returns the format of the generated source.
func (m *BareMetal) FileFormat() string { return Format }

// TypeKey implements runtime.Module.
func (m *BareMetal) TypeKey() string { return runtime.CodeGenTypeKey }

// PropertyMask implements runtime.Module.
func (m *BareMetal) PropertyMask() runtime.PropertyMask { return runtime.DSOExportable }

// SaveToBinary implements runtime.Module. BareMetal is not binary serializable, so it always fails.
func (m *BareMetal) SaveToBinary(_ io.Writer) error {
	return compass.Serializationf("module %q can only be saved as source, see SaveToFile", m.TypeKey())
}

// GetFunction implements runtime.Module. The only function is GetFuncNamesFunc, which returns a []string.
func (m *BareMetal) GetFunction(name string) (*runtime.Function, bool) {
	if name != GetFuncNamesFunc {
		return nil, false
	}
	return runtime.NewFunction(name, func(args ...any) (any, error) {
		if len(args) != 0 {
			return nil, compass.ContractViolationf("%q takes no arguments, got %d", name, len(args))
		}
		return m.FuncNames(), nil
	}), true
}

// fileFormat returns format, or if it is empty the extension of fileName.
func fileFormat(fileName, format string) string {
	if format != "" {
		return format
	}
	return strings.TrimPrefix(filepath.Ext(fileName), ".")
}

// SaveToFile writes the source to fileName. The format, if empty, is taken from the file extension, and it must
// be Format.
//
// For targets that don't embed the program, the program is also written to ExternalBinaryFileName in the same
// directory.
func (m *BareMetal) SaveToFile(fileName, format string) error {
	if got := fileFormat(fileName, format); got != Format {
		return compass.Serializationf("module %q can only be saved to format %q, got %q for %q", m.TypeKey(), Format, got, fileName)
	}
	if m.source == "" {
		return compass.Serializationf("no source generated for %q", m.program.FuncName)
	}
	if err := fsutil.SaveBinaryToFile(fileName, []byte(m.source)); err != nil {
		return compass.Serialization(err, "saving the source of %q", m.program.FuncName)
	}
	if !EmbedsBinary(m.program.Target) {
		binaryPath := filepath.Join(filepath.Dir(fileName), ExternalBinaryFileName)
		if err := fsutil.SaveBinaryToFile(binaryPath, m.program.Binary); err != nil {
			return compass.Serialization(err, "saving the program of %q for target %q", m.program.FuncName, m.program.Target)
		}
		klog.V(1).Infof("saved program of %q to %s", m.program.FuncName, binaryPath)
	}
	return nil
}
