// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package proxy

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/usbarmory/GoTEE-ffa/ffa"
	"github.com/usbarmory/GoTEE-ffa/s2"
	"github.com/usbarmory/GoTEE-ffa/spmc"
)

const (
	ramBase = 0x80000000
	ramSize = 0x100000

	// host memory, tracked by the page table
	hostSize = 0x80000
	hostTX   = ramBase + 0x1000
	hostRX   = ramBase + 0x2000

	// monitor memory
	stagingPA = ramBase + hostSize

	partition = 0x8001
)

var errInjected = errors.New("injected failure")

type ram []byte

func (r ram) Slice(pa uint64, size int) ([]byte, error) {
	if pa < ramBase || pa+uint64(size) > ramBase+uint64(len(r)) {
		return nil, fmt.Errorf("invalid address %#x", pa)
	}

	off := pa - ramBase

	return r[off : off+uint64(size)], nil
}

type regs struct {
	args [5]uint64
	res  ffa.Result
}

func (r *regs) Arg(n int) uint64 {
	return r.args[n]
}

func (r *regs) SetResult(res ffa.Result) {
	r.res = res
}

// pgt wraps a page ownership tracker with failure injection
type pgt struct {
	*s2.Tracker

	failShare   map[uint64]bool
	failUnshare map[uint64]bool
	failHyp     map[uint64]bool

	mu         sync.Mutex
	shares     int
	unshareHyp int
}

func (p *pgt) ShareFFA(pfn uint64, nr uint64) error {
	p.mu.Lock()
	p.shares++
	p.mu.Unlock()

	if p.failShare[pfn] {
		return errInjected
	}

	return p.Tracker.ShareFFA(pfn, nr)
}

func (p *pgt) UnshareFFA(pfn uint64, nr uint64) error {
	if p.failUnshare[pfn] {
		return errInjected
	}

	return p.Tracker.UnshareFFA(pfn, nr)
}

func (p *pgt) ShareHyp(pfn uint64) error {
	if p.failHyp[pfn] {
		return errInjected
	}

	return p.Tracker.ShareHyp(pfn)
}

func (p *pgt) UnshareHyp(pfn uint64) error {
	p.mu.Lock()
	p.unshareHyp++
	p.mu.Unlock()

	return p.Tracker.UnshareHyp(pfn)
}

// spmd records secure world calls, optionally overriding their result
type spmd struct {
	sync.Mutex

	next     Conduit
	override func(args ffa.Args) (ffa.Result, bool)
	calls    []uint32
}

func (s *spmd) Call(args ffa.Args) ffa.Result {
	s.Lock()
	s.calls = append(s.calls, uint32(args[0]))
	s.Unlock()

	if s.override != nil {
		if res, ok := s.override(args); ok {
			return res
		}
	}

	return s.next.Call(args)
}

func (s *spmd) reset() {
	s.Lock()
	defer s.Unlock()

	s.calls = nil
}

func (s *spmd) called(fid uint32) (n int) {
	s.Lock()
	defer s.Unlock()

	for _, c := range s.calls {
		if c == fid {
			n++
		}
	}

	return
}

func (p *pgt) counters() (shares int, unshareHyp int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.shares, p.unshareHyp
}

func (s *spmd) count() int {
	s.Lock()
	defer s.Unlock()

	return len(s.calls)
}

type env struct {
	p    *Proxy
	mem  ram
	pgt  *pgt
	spmd *spmd
	spmc *spmc.SPMC
	logs *observer.ObservedLogs
}

func newEnv(t *testing.T, override func(args ffa.Args) (ffa.Result, bool)) *env {
	mem := make(ram, ramSize)

	tracker, err := s2.NewTracker(ramBase, hostSize, 4096)
	require.NoError(t, err)

	sp, err := spmc.New(mem, nil, partition)
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)

	e := &env{
		mem:  mem,
		pgt:  &pgt{Tracker: tracker},
		spmd: &spmd{next: sp, override: override},
		spmc: sp,
		logs: logs,
	}

	e.p, err = New(DefaultConfig(), e.pgt, mem, e.spmd, zap.New(core))
	require.NoError(t, err)

	return e
}

func (e *env) staging() []byte {
	off := stagingPA - ramBase
	return e.mem[off : off+2*4096]
}

// newProxy returns an initialized proxy instance
func newProxy(t *testing.T) *env {
	e := newEnv(t, nil)

	require.NoError(t, e.p.Init(e.staging(), stagingPA))
	e.spmd.reset()

	return e
}

func (e *env) call(args ...uint64) (ffa.Result, bool) {
	r := &regs{}
	copy(r.args[:], args)

	ok := e.p.Handle(r)

	return r.res, ok
}

func (e *env) mapBuffers(t *testing.T) {
	res, ok := e.call(ffa.FFA_FN64_RXTX_MAP, hostTX, hostRX, 1)
	require.True(t, ok)
	require.True(t, res.IsSuccess(), res.String())
	e.spmd.reset()
}

// write encodes a descriptor in the host TX buffer
func (e *env) write(t *testing.T, m *ffa.MemRegion) uint64 {
	off := hostTX - ramBase

	n, err := m.Marshal(e.mem[off : off+4096])
	require.NoError(t, err)

	return uint64(n)
}

func TestNew(t *testing.T) {
	_, err := New(Config{PageSize: 8192, MailboxPages: 1}, &pgt{}, ram{}, &spmd{}, nil)
	assert.Error(t, err)

	_, err = New(DefaultConfig(), nil, ram{}, &spmd{}, nil)
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	e := newEnv(t, nil)

	assert.False(t, e.p.Enabled())

	require.NoError(t, e.p.Init(e.staging(), stagingPA))

	assert.True(t, e.p.Enabled())
	assert.Equal(t, 1, e.spmd.called(ffa.SMCCC_VERSION))
	assert.Equal(t, 1, e.spmd.called(ffa.FFA_VERSION))
	assert.Equal(t, 1, e.spmd.called(ffa.FFA_ID_GET))
	assert.Equal(t, 1, e.spmd.called(ffa.FFA_FEATURES))

	s := e.p.Status()
	assert.True(t, s.Enabled)
	assert.False(t, s.Mapped)

	assert.Equal(t, 1, e.logs.FilterMessage("FF-A proxy enabled").Len())
}

func TestInitInvalidBuffers(t *testing.T) {
	e := newEnv(t, nil)

	assert.Error(t, e.p.Init(e.staging()[:4096], stagingPA))
	assert.Error(t, e.p.Init(e.staging(), stagingPA+0x100))
	assert.Zero(t, e.spmd.count())
	assert.False(t, e.p.Enabled())
}

func TestInitNegotiation(t *testing.T) {
	for _, tt := range []struct {
		name string
		fid  uint32
		res  ffa.Result
		err  error
	}{
		{"SMCCC 1.1", ffa.SMCCC_VERSION, ffa.Result{A0: ffa.SMCCCVersion1_1}, ErrUnsupported},
		{"SMCCC unsupported", ffa.SMCCC_VERSION, ffa.Result{A0: 0xffffffffffffffff}, ErrUnsupported},
		{"FF-A unsupported", ffa.FFA_VERSION, ffa.Result{A0: 0xffffffff}, ErrUnsupported},
		{"FF-A 1.1", ffa.FFA_VERSION, ffa.Result{A0: 1<<16 | 1}, ErrIncompatible},
		{"ID_GET error", ffa.FFA_ID_GET, ffa.ErrorResult(ffa.ErrNotSupported), ErrIncompatible},
		{"ID_GET mismatch", ffa.FFA_ID_GET, ffa.Success(1), ErrIncompatible},
		{"FEATURES error", ffa.FFA_FEATURES, ffa.ErrorResult(ffa.ErrNotSupported), ErrIncompatible},
		{"FEATURES 64K", ffa.FFA_FEATURES, ffa.Success(ffa.FEAT_RXTX_MIN_SZ_64K), ErrIncompatible},
		{"FEATURES 16K", ffa.FFA_FEATURES, ffa.Success(ffa.FEAT_RXTX_MIN_SZ_16K), ErrIncompatible},
		{"FEATURES invalid", ffa.FFA_FEATURES, ffa.Success(3), ErrIncompatible},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, func(args ffa.Args) (ffa.Result, bool) {
				return tt.res, uint32(args[0]) == tt.fid
			})

			err := e.p.Init(e.staging(), stagingPA)
			require.ErrorIs(t, err, tt.err)

			assert.False(t, e.p.Enabled())

			// disabled proxies let every call through
			_, ok := e.call(ffa.FFA_MEM_DONATE)
			assert.False(t, ok)

			_, ok = e.call(ffa.FFA_FN64_RXTX_MAP, hostTX, hostRX, 1)
			assert.False(t, ok)
		})
	}
}

func TestStatus(t *testing.T) {
	e := newProxy(t)
	e.mapBuffers(t)

	_, ok := e.call(ffa.FFA_MSG_SEND)
	require.True(t, ok)

	s := e.p.Status()

	assert.True(t, s.Mapped)
	assert.Equal(t, uint64(hostTX), s.TX)
	assert.Equal(t, uint64(hostRX), s.RX)
	assert.Equal(t, uint64(2), s.Calls)
	assert.Equal(t, uint64(1), s.Errors)
}
