// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runtime

import "sync/atomic"

// handle counts the references to a live session: the owner of the module holds one, and so does every
// Function returned by GetFunction. The session is released when the last reference is dropped.
type handle struct {
	refs    atomic.Int32
	release func()
}

func newHandle(release func()) *handle {
	h := &handle{release: release}
	h.refs.Store(1)
	return h
}

// acquire a new reference. It fails if the session was already released.
func (h *handle) acquire() bool {
	for {
		refs := h.refs.Load()
		if refs <= 0 {
			return false
		}
		if h.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

// drop one reference, releasing the session if it was the last.
func (h *handle) drop() {
	if h.refs.Add(-1) == 0 {
		h.release()
	}
}

// alive returns whether the session was not yet released.
func (h *handle) alive() bool { return h.refs.Load() > 0 }
