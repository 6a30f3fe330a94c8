// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sim

import (
	"sync"

	"github.com/gomlx/compass/pkg/compass/driver"
	"github.com/pkg/errors"
)

// Buffer of simulated device memory, addressable both by a file descriptor and by a physical address.
type Buffer struct {
	FD   int32
	PA   uint64
	Data []byte
}

// Memory is a pool of simulated device memory, shared by all sessions of the process, so that pipeline stages
// can exchange buffers.
type Memory struct {
	mu     sync.Mutex
	nextFD int32
	nextPA uint64
	byFD   map[int32]*Buffer
	byPA   map[uint64]*Buffer
}

const (
	firstFD   = 3
	firstPA   = 0x1000_0000
	pageAlign = 4096
)

// NewMemory returns an empty pool.
func NewMemory() *Memory {
	return &Memory{
		nextFD: firstFD,
		nextPA: firstPA,
		byFD:   make(map[int32]*Buffer),
		byPA:   make(map[uint64]*Buffer),
	}
}

// Allocate returns a new zeroed buffer of size bytes.
// Its FD is always positive and its PA is never one of the "not shared" sentinels.
func (m *Memory) Allocate(size int) (*Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("invalid buffer size %d", size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := &Buffer{FD: m.nextFD, PA: m.nextPA, Data: make([]byte, size)}
	if b.PA == driver.NotSharedOutputPA || b.PA == driver.NotSharedInputPA || b.FD <= 0 {
		return nil, errors.New("simulated device memory exhausted")
	}
	m.nextFD++
	m.nextPA += (uint64(max(size, 1)) + pageAlign - 1) / pageAlign * pageAlign
	m.byFD[b.FD] = b
	m.byPA[b.PA] = b
	return b, nil
}

// LookupFD returns the buffer with the given file descriptor.
func (m *Memory) LookupFD(fd int32) (*Buffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, found := m.byFD[fd]
	return b, found
}

// LookupPA returns the buffer with the given physical address.
func (m *Memory) LookupPA(pa uint64) (*Buffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, found := m.byPA[pa]
	return b, found
}

// Free releases the buffer. Freeing an unknown buffer is a no-op.
func (m *Memory) Free(b *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byFD[b.FD] == b {
		delete(m.byFD, b.FD)
		delete(m.byPA, b.PA)
	}
}

// Len returns the number of live buffers.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byFD)
}

var defaultMemory = NewMemory()

// SharedMemory returns the process-wide pool used by all simulator sessions.
func SharedMemory() *Memory { return defaultMemory }
