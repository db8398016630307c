// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mem defines the monitor memory layout and physical memory access
// to reserved regions.
package mem

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/btree"
)

var (
	ErrOverlap  = errors.New("overlapping window")
	ErrNotFound = errors.New("address not mapped")
)

type window struct {
	start uint64
	buf   []byte
}

func (w window) end() uint64 {
	return w.start + uint64(len(w.buf))
}

// Windows is a set of non-overlapping physical memory windows, each backed
// by a byte slice.
type Windows struct {
	sync.RWMutex
	tree *btree.BTreeG[window]
}

func (ws *Windows) init() {
	if ws.tree == nil {
		ws.tree = btree.NewG(4, func(a, b window) bool {
			return a.start < b.start
		})
	}
}

// floor returns the window with the highest start address not above pa.
func (ws *Windows) floor(pa uint64) (w window, found bool) {
	ws.tree.DescendLessOrEqual(window{start: pa}, func(i window) bool {
		w = i
		found = true
		return false
	})

	return
}

// Add registers a window at physical address pa.
func (ws *Windows) Add(pa uint64, buf []byte) error {
	ws.Lock()
	defer ws.Unlock()

	ws.init()

	w := window{start: pa, buf: buf}

	if len(buf) == 0 || w.end() < pa {
		return fmt.Errorf("invalid window %#x (%d bytes)", pa, len(buf))
	}

	if prev, ok := ws.floor(w.end() - 1); ok && prev.end() > pa {
		return fmt.Errorf("%w, %#x-%#x", ErrOverlap, prev.start, prev.end())
	}

	ws.tree.ReplaceOrInsert(w)

	return nil
}

// Slice returns the bytes at physical address pa, the requested area must
// be contained within a single window.
func (ws *Windows) Slice(pa uint64, size int) ([]byte, error) {
	ws.RLock()
	defer ws.RUnlock()

	if ws.tree == nil || size < 0 {
		return nil, fmt.Errorf("%w, %#x", ErrNotFound, pa)
	}

	w, ok := ws.floor(pa)

	if !ok || pa+uint64(size) < pa || pa+uint64(size) > w.end() {
		return nil, fmt.Errorf("%w, %#x (%d bytes)", ErrNotFound, pa, size)
	}

	off := pa - w.start

	return w.buf[off : off+uint64(size)], nil
}

// Len returns the number of registered windows.
func (ws *Windows) Len() int {
	ws.RLock()
	defer ws.RUnlock()

	if ws.tree == nil {
		return 0
	}

	return ws.tree.Len()
}
