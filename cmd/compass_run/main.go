// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// compass_run loads a compiled AIPU program, or a module saved with -save, and runs it with the configured
// driver. It can also save the module, or generate the baremetal C source for the program.
//
// The driver is selected by $AIPU_COMPASS_DRIVER (or -driver); the simulator ("sim") is always linked in.
//
// Examples:
//
//	compass_run -bin aipu.bin -func main -params
//	compass_run -bin aipu.bin -func main -inputs inputs.npz -outputs_dir /tmp/out -repeat 100
//	compass_run -bin aipu.bin -func main -target X2_1204 -codegen /tmp/fw/lib0.c
//	compass_run -module main.compass -dynamic -inputs inputs.npz
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/compass/pkg/compass/codegen"
	"github.com/gomlx/compass/pkg/compass/config"
	_ "github.com/gomlx/compass/pkg/compass/driver/sim"
	"github.com/gomlx/compass/pkg/compass/runtime"
	"github.com/gomlx/compass/pkg/compass/tensordump"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagBin    = flag.String("bin", "", "Compiled AIPU program to load. Either -bin or -module must be given.")
	flagFunc   = flag.String("func", "main", "Function name of the program given with -bin.")
	flagTarget = flag.String("target", "X1_1204", "AIPU target the program given with -bin was compiled for.")
	flagDTCM   = flag.String("dtcm", "", "DTCM size for the program given with -bin, e.g. \"1MB\". Empty uses the driver default.")
	flagModule = flag.String("module", "", "Module saved with -save, to load instead of -bin.")
	flagDriver = flag.String("driver", "", "Driver configuration \"<driver>[:<options>]\". Overrides $"+config.EnvDriver+".")

	flagSave       = flag.String("save", "", "Save the module to this file.")
	flagBinaryOnly = flag.Bool("binary_only", false, "With -save or -codegen, use the program only, without opening a session or running it.")
	flagCodeGen    = flag.String("codegen", "", "Generate the baremetal C source of the program to this file (\".c\").")

	flagParams     = flag.Bool("params", false, "Display the input and output contracts of the program.")
	flagInputs     = flag.String("inputs", "", "NumPy .npz file with the inputs, in order. If empty, inputs are zeros.")
	flagOutputsDir = flag.String("outputs_dir", "", "Directory where to save the outputs, as output_<n>.npy files.")
	flagDynamic    = flag.Bool("dynamic", false, "Run with the shapes of the given inputs, and outputs shaped by the driver.")
	flagRepeat     = flag.Int("repeat", 1, "Number of times to run, 0 to not run. A progress bar is displayed if > 1.")
	flagNoColor    = flag.Bool("no_color", false, "Disable colors in the output.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	if err := checkFlags(); err != nil {
		klog.Errorf("%v. See 'compass_run -help'.", err)
		os.Exit(1)
	}

	cfg := config.Global().Clone()
	if *flagDriver != "" {
		cfg.Driver = *flagDriver
	}
	tensordump.Install(cfg)

	module := must.M1(loadModule(cfg))
	if m, ok := module.(*runtime.ExecutionModule); ok {
		defer m.Finalize()
	}

	if *flagCodeGen != "" {
		program := must.M1(programOf(module))
		must.M(codegen.New(program).SaveToFile(*flagCodeGen, ""))
		fmt.Printf("Generated baremetal source for %q in %s\n", program.FuncName, *flagCodeGen)
	}
	if *flagSave != "" {
		must.M(runtime.SaveFile(*flagSave, module))
		fmt.Printf("Saved %s to %s\n", module.TypeKey(), *flagSave)
	}
	if *flagBinaryOnly {
		return
	}

	m, ok := module.(*runtime.ExecutionModule)
	if !ok {
		m = must.M1(module.(*runtime.Binary).Materialize(runtime.WithConfig(cfg)))
		defer m.Finalize()
	}
	if *flagParams {
		fmt.Println(paramsTable(m))
	}
	if *flagRepeat > 0 {
		res := must.M1(run(m, runOptions{
			inputsFile: *flagInputs,
			dynamic:    *flagDynamic,
			repeat:     *flagRepeat,
			progress:   *flagRepeat > 1,
		}))
		fmt.Println(resultsTable(m, res))
		if *flagOutputsDir != "" {
			files := must.M1(saveOutputs(*flagOutputsDir, res.outputs))
			fmt.Printf("Saved %d outputs to %s\n", len(files), *flagOutputsDir)
		}
	}
}

// checkFlags returns an error for flag combinations that can't do anything useful.
func checkFlags() error {
	if (*flagBin == "") == (*flagModule == "") {
		return errors.New("exactly one of -bin or -module must be given")
	}
	if *flagBinaryOnly && *flagSave == "" && *flagCodeGen == "" {
		return errors.New("-binary_only requires -save or -codegen")
	}
	return nil
}

// loadModule returns the module given by -module, or built from the program given by -bin.
// With -binary_only no session is opened, and the module is a *runtime.Binary.
func loadModule(cfg *config.Config) (runtime.Module, error) {
	if *flagModule != "" {
		return runtime.LoadFile(*flagModule, runtime.WithConfig(cfg))
	}
	binary, err := os.ReadFile(*flagBin)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read program from %q", *flagBin)
	}
	program := runtime.NewProgram(binary, *flagFunc, *flagTarget, *flagDTCM)
	if *flagBinaryOnly {
		return runtime.NewBinary(program, runtime.WithConfig(cfg)), nil
	}
	return runtime.New(program, runtime.WithConfig(cfg))
}
