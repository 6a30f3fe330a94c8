// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"io"
	"strings"
)

// Type keys of the modules, used to find the loader of a serialized module.
const (
	ExecutionModuleTypeKey = "aipu_compass.AipuCompassModuleNode"
	BinaryTypeKey          = "aipu_compass.AipuCompassBinaryNode"
	CodeGenTypeKey         = "c"
)

// PropertyMask is a bit set of the capabilities of a Module.
type PropertyMask int

const (
	// BinarySerializable modules can be written with SaveToBinary and read back with Load.
	BinarySerializable PropertyMask = 1 << iota

	// Runnable modules expose functions with GetFunction.
	Runnable

	// DSOExportable modules generate source to be compiled into a shared library or firmware.
	DSOExportable
)

// Has returns whether all bits of flags are set.
func (m PropertyMask) Has(flags PropertyMask) bool { return m&flags == flags }

// String implements fmt.Stringer.
func (m PropertyMask) String() string {
	var parts []string
	if m.Has(BinarySerializable) {
		parts = append(parts, "BinarySerializable")
	}
	if m.Has(Runnable) {
		parts = append(parts, "Runnable")
	}
	if m.Has(DSOExportable) {
		parts = append(parts, "DSOExportable")
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// Module is the interface the host runtime sees: something nameable, serializable and invocable by name.
// An adapter layer maps it to the ABI of the host.
type Module interface {
	// TypeKey names the kind of module.
	TypeKey() string

	// SaveToBinary writes the module's payload. Modules that are not BinarySerializable return an error.
	SaveToBinary(w io.Writer) error

	// GetFunction returns the function with the given name, or false if there is none.
	// The caller must call Function.Release when done.
	GetFunction(name string) (*Function, bool)

	// PropertyMask returns the capabilities of the module.
	PropertyMask() PropertyMask
}
