// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"fmt"
	"io"
	"slices"

	"github.com/gomlx/compass/internal/stream"
	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/compass/driver"
)

// Program is a compiled accelerator program: an opaque binary plus the metadata needed to open it.
//
// Treat it as immutable: NewProgram and Clone copy the binary.
type Program struct {
	// Binary is the compiled program, never inspected by this package.
	Binary []byte

	// FuncName is the name of the function the program implements.
	FuncName string

	// Target identifies the accelerator device the program was built for, e.g. "X2_1204".
	Target string

	// DTCMSize is the device memory size hint (the "data tightly coupled memory"), used by simulators.
	DTCMSize string
}

// NewProgram returns a Program with a copy of binary.
func NewProgram(binary []byte, funcName, target, dtcmSize string) Program {
	return Program{Binary: slices.Clone(binary), FuncName: funcName, Target: target, DTCMSize: dtcmSize}
}

// Clone returns a deep copy of the program.
func (p Program) Clone() Program {
	p.Binary = slices.Clone(p.Binary)
	return p
}

// Equal returns whether both programs have identical binaries and metadata.
func (p Program) Equal(other Program) bool {
	return slices.Equal(p.Binary, other.Binary) && p.FuncName == other.FuncName &&
		p.Target == other.Target && p.DTCMSize == other.DTCMSize
}

// String implements fmt.Stringer.
func (p Program) String() string {
	return fmt.Sprintf("Program(%q, target=%q, dtcm=%q, %d bytes)", p.FuncName, p.Target, p.DTCMSize, len(p.Binary))
}

// driverOptions returns the options to open a session for the program.
func (p Program) driverOptions() driver.Options {
	return driver.Options{
		Binary:   p.Binary,
		FuncName: p.FuncName,
		Target:   p.Target,
		DTCMSize: p.DTCMSize,
	}
}

// writeProgram writes the four fields of the program, each prefixed by its uint64 length.
func writeProgram(w io.Writer, p Program) error {
	sw := stream.NewWriter(w)
	sw.WriteBytes(p.Binary)
	sw.WriteString(p.FuncName)
	sw.WriteString(p.Target)
	sw.WriteString(p.DTCMSize)
	return compass.Serialization(sw.Err(), "failed to write program %q", p.FuncName)
}

// readProgram reads a Program written by writeProgram. Any missing field is an error.
func readProgram(r io.Reader) (Program, error) {
	sr := stream.NewReader(r)
	p := Program{
		Binary:   sr.ReadBytes("binary"),
		FuncName: sr.ReadString("func_name"),
		Target:   sr.ReadString("target"),
		DTCMSize: sr.ReadString("dtcm_size"),
	}
	if err := sr.Err(); err != nil {
		return Program{}, compass.Serialization(err, "failed to read program")
	}
	return p, nil
}
