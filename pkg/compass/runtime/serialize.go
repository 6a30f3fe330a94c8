// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"bufio"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/gomlx/compass/internal/stream"
	"github.com/gomlx/compass/pkg/compass"
	"github.com/gomlx/compass/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// Loader reads the payload of a module written by its Module.SaveToBinary.
type Loader func(r io.Reader, opts ...Option) (Module, error)

var (
	muLoaders sync.Mutex
	loaders   = make(map[string]Loader)
)

// RegisterLoader registers the loader for modules with the given type key. It replaces any previous loader.
func RegisterLoader(typeKey string, loader Loader) {
	muLoaders.Lock()
	defer muLoaders.Unlock()
	loaders[typeKey] = loader
}

// Loaders returns the type keys with a registered loader, sorted.
func Loaders() []string {
	muLoaders.Lock()
	defer muLoaders.Unlock()
	keys := make([]string, 0, len(loaders))
	for key := range loaders {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func init() {
	RegisterLoader(ExecutionModuleTypeKey, func(r io.Reader, opts ...Option) (Module, error) {
		m, err := LoadExecutionModule(r, opts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
	RegisterLoader(BinaryTypeKey, func(r io.Reader, opts ...Option) (Module, error) {
		b, err := LoadBinary(r, opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}

// Save writes the module's type key followed by its payload, so it can be read back with Load.
func Save(w io.Writer, m Module) error {
	if !m.PropertyMask().Has(BinarySerializable) {
		return errors.Wrapf(compass.ErrSerialization, "module %q is not binary serializable", m.TypeKey())
	}
	sw := stream.NewWriter(w)
	sw.WriteString(m.TypeKey())
	if err := sw.Err(); err != nil {
		return compass.Serialization(err, "failed to write type key %q", m.TypeKey())
	}
	return m.SaveToBinary(w)
}

// Load reads a module written by Save, using the loader registered for its type key.
// Modules that hold a session open it, configured by opts.
func Load(r io.Reader, opts ...Option) (Module, error) {
	sr := stream.NewReader(r)
	typeKey := sr.ReadString("type_key")
	if err := sr.Err(); err != nil {
		return nil, compass.Serialization(err, "failed to read module type key")
	}
	muLoaders.Lock()
	loader, found := loaders[typeKey]
	muLoaders.Unlock()
	if !found {
		return nil, errors.Wrapf(compass.ErrSerialization, "no loader registered for module type %q", typeKey)
	}
	return loader(r, opts...)
}

// SaveFile saves the module (see Save) to fileName.
func SaveFile(fileName string, m Module) error {
	fileName, err := fsutil.AbsPath(fileName, "")
	if err != nil {
		return compass.Serialization(err, "invalid module file name")
	}
	f, err := os.Create(fileName)
	if err != nil {
		return compass.Serialization(err, "failed to create module file")
	}
	w := bufio.NewWriter(f)
	if err = Save(w, m); err != nil {
		_ = f.Close()
		return errors.WithMessagef(err, "saving module to %q", fileName)
	}
	if err = w.Flush(); err != nil {
		_ = f.Close()
		return compass.Serialization(err, "failed to write module to %q", fileName)
	}
	return compass.Serialization(f.Close(), "failed to close %q", fileName)
}

// LoadFile loads a module (see Load) from fileName.
func LoadFile(fileName string, opts ...Option) (Module, error) {
	fileName, err := fsutil.AbsPath(fileName, "")
	if err != nil {
		return nil, compass.Serialization(err, "invalid module file name")
	}
	f, err := os.Open(fileName)
	if err != nil {
		return nil, compass.Serialization(err, "failed to open module file")
	}
	defer func() { _ = f.Close() }()
	m, err := Load(bufio.NewReader(f), opts...)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading module from %q", fileName)
	}
	return m, nil
}
