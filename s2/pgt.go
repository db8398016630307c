// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package s2 tracks ownership of host physical pages, as enforced by the
// security monitor on behalf of the Normal World.
//
// Every page within the host range starts exclusively owned by the host,
// only pages in a different state are stored.
package s2

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/btree"
)

// State represents the ownership state of a host page.
type State int

// Page ownership states
const (
	// Owned pages are exclusively accessible by the host.
	Owned State = iota
	// SharedFFA pages are owned by the host and shared with the secure
	// world through an FF-A memory transaction.
	SharedFFA
	// SharedHyp pages are owned by the host and shared with the monitor.
	SharedHyp
)

func (s State) String() string {
	switch s {
	case Owned:
		return "owned"
	case SharedFFA:
		return "shared-ffa"
	case SharedHyp:
		return "shared-hyp"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrInvalidRange = errors.New("invalid page range")
	ErrOutOfRange   = errors.New("page outside host memory")
	ErrState        = errors.New("unexpected page state")
)

// degree of the page state tree
const degree = 16

type page struct {
	pfn   uint64
	state State
}

func less(a, b page) bool {
	return a.pfn < b.pfn
}

// Tracker represents the page ownership table of a host physical memory
// range, its methods are safe for concurrent use and each one either fully
// applies or leaves the table unchanged.
type Tracker struct {
	sync.Mutex

	size  uint64
	start uint64
	end   uint64

	pages *btree.BTreeG[page]
}

// NewTracker returns a tracker for the host memory range of the argument
// base address and size, expressed in pages of the argument size.
func NewTracker(base uint64, size uint64, pageSize uint64) (t *Tracker, err error) {
	if pageSize == 0 || pageSize&(pageSize-1) != 0 {
		return nil, fmt.Errorf("invalid page size %#x", pageSize)
	}

	if base%pageSize != 0 || size%pageSize != 0 || size == 0 {
		return nil, fmt.Errorf("invalid host memory range %#x-%#x", base, base+size)
	}

	t = &Tracker{
		size:  pageSize,
		start: base / pageSize,
		end:   (base + size) / pageSize,
		pages: btree.NewG[page](degree, less),
	}

	return
}

// Bounds returns the first and last (excluded) page frame number of the
// host memory range.
func (t *Tracker) Bounds() (start uint64, end uint64) {
	return t.start, t.end
}

// PageSize returns the tracking granule.
func (t *Tracker) PageSize() uint64 {
	return t.size
}

func (t *Tracker) check(pfn uint64, nr uint64) error {
	if nr == 0 || pfn+nr < pfn {
		return ErrInvalidRange
	}

	if pfn < t.start || pfn+nr > t.end {
		return ErrOutOfRange
	}

	return nil
}

func (t *Tracker) state(pfn uint64) State {
	if p, ok := t.pages.Get(page{pfn: pfn}); ok {
		return p.state
	}

	return Owned
}

func (t *Tracker) set(pfn uint64, s State) {
	if s == Owned {
		t.pages.Delete(page{pfn: pfn})
		return
	}

	t.pages.ReplaceOrInsert(page{pfn: pfn, state: s})
}

// transition moves nr pages starting at pfn from one state to another, all
// pages are validated before any of them is updated.
func (t *Tracker) transition(pfn uint64, nr uint64, from State, to State) (err error) {
	t.Lock()
	defer t.Unlock()

	if err = t.check(pfn, nr); err != nil {
		return
	}

	for i := uint64(0); i < nr; i++ {
		if s := t.state(pfn + i); s != from {
			return fmt.Errorf("%w, pfn %#x is %s", ErrState, pfn+i, s)
		}
	}

	for i := uint64(0); i < nr; i++ {
		t.set(pfn+i, to)
	}

	return
}

// ShareFFA shares nr host owned pages, starting at pfn, with the secure
// world.
func (t *Tracker) ShareFFA(pfn uint64, nr uint64) error {
	return t.transition(pfn, nr, Owned, SharedFFA)
}

// UnshareFFA returns nr pages, starting at pfn, previously shared with the
// secure world to exclusive host ownership.
func (t *Tracker) UnshareFFA(pfn uint64, nr uint64) error {
	return t.transition(pfn, nr, SharedFFA, Owned)
}

// ShareHyp shares a host owned page with the monitor.
func (t *Tracker) ShareHyp(pfn uint64) error {
	return t.transition(pfn, 1, Owned, SharedHyp)
}

// UnshareHyp revokes monitor access to a host page.
func (t *Tracker) UnshareHyp(pfn uint64) error {
	return t.transition(pfn, 1, SharedHyp, Owned)
}

// State returns the ownership state of a page, pages outside the host
// range are reported as owned.
func (t *Tracker) State(pfn uint64) State {
	t.Lock()
	defer t.Unlock()

	return t.state(pfn)
}

// Walk calls fn, in ascending page frame number order, for every page not
// exclusively owned by the host until fn returns false.
func (t *Tracker) Walk(fn func(pfn uint64, s State) bool) {
	t.Lock()
	defer t.Unlock()

	t.pages.Ascend(func(p page) bool {
		return fn(p.pfn, p.state)
	})
}

// Shared returns the number of pages not exclusively owned by the host.
func (t *Tracker) Shared() int {
	t.Lock()
	defer t.Unlock()

	return t.pages.Len()
}
