// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package proxy implements a filter for FF-A memory management calls issued
// by an untrusted host towards the secure world.
//
// The proxy validates host memory sharing requests, tracks the ownership
// of every page involved in the host stage-2 page table and relays the
// requests to the secure world through its own staging RX/TX buffer pair,
// undoing any ownership change the secure world did not accept.
package proxy

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/usbarmory/GoTEE-ffa/ffa"
)

// Registers represents the argument and result registers of a trapped
// call.
type Registers interface {
	// Arg returns argument register n, register 0 holds the function
	// identifier.
	Arg(n int) uint64
	// SetResult sets the result registers.
	SetResult(ffa.Result)
}

// PageTable represents the host stage-2 page ownership primitives, each call
// either fully succeeds or leaves ownership unchanged.
type PageTable interface {
	ShareFFA(pfn uint64, nr uint64) error
	UnshareFFA(pfn uint64, nr uint64) error
	ShareHyp(pfn uint64) error
	UnshareHyp(pfn uint64) error
}

// Memory represents monitor access to physical memory.
type Memory interface {
	Slice(pa uint64, size int) ([]byte, error)
}

// Conduit represents the secure world call transport.
type Conduit interface {
	Call(args ffa.Args) ffa.Result
}

var (
	ErrUnsupported  = errors.New("FF-A not supported by the secure world")
	ErrIncompatible = errors.New("incompatible secure world FF-A implementation")
)

// mailbox represents an RX/TX buffer pair.
type mailbox struct {
	tx   []byte
	rx   []byte
	txPA uint64
	rxPA uint64
}

// Status represents a snapshot of the proxy state.
type Status struct {
	Enabled bool
	Mapped  bool

	// HostID is the Normal World FF-A endpoint identifier.
	HostID uint16

	// host RX/TX buffer physical addresses
	TX uint64
	RX uint64

	// Calls is the number of handled calls.
	Calls uint64
	// Errors is the number of handled calls answered with FFA_ERROR.
	Errors uint64
	// Rollbacks is the number of undone page ownership changes.
	Rollbacks uint64
	// Divergences is the number of failed rollbacks or teardowns.
	Divergences uint64
}

type stats struct {
	calls       atomic.Uint64
	errors      atomic.Uint64
	rollbacks   atomic.Uint64
	divergences atomic.Uint64
}

// Proxy represents an FF-A memory management proxy instance.
type Proxy struct {
	// serializes use of the mailboxes
	sync.Mutex

	conf    Config
	enabled atomic.Bool

	pgt  PageTable
	mem  Memory
	spmd Conduit
	log  *zap.Logger

	// staging buffers, shared with the secure world
	staging mailbox
	// host buffers, nil when unmapped
	host *mailbox

	stats stats
}

// New returns a disabled proxy instance, Init must be called to negotiate
// FF-A support with the secure world.
func New(conf Config, pgt PageTable, mem Memory, spmd Conduit, log *zap.Logger) (p *Proxy, err error) {
	if err = conf.Validate(); err != nil {
		return
	}

	if pgt == nil || mem == nil || spmd == nil {
		return nil, errors.New("missing proxy collaborator")
	}

	if log == nil {
		log = zap.NewNop()
	}

	p = &Proxy{
		conf: conf,
		pgt:  pgt,
		mem:  mem,
		spmd: spmd,
		log:  log.Named("ffa"),
	}

	return
}

// Init hands over to the proxy the staging buffer pair, the argument pages
// (at physical address pa) must hold exactly two mailboxes, and negotiates
// FF-A support with the secure world.
//
// On error the proxy is left disabled and lets every call through.
func (p *Proxy) Init(pages []byte, pa uint64) (err error) {
	size := p.conf.BufferSize()

	if len(pages) != 2*size || pa%p.conf.PageSize != 0 {
		return fmt.Errorf("invalid staging buffers (%#x@%#x)", len(pages), pa)
	}

	if err = p.negotiate(); err != nil {
		return
	}

	p.Lock()
	defer p.Unlock()

	p.staging = mailbox{
		tx:   pages[:size:size],
		rx:   pages[size:],
		txPA: pa,
		rxPA: pa + uint64(size),
	}

	p.enabled.Store(true)

	p.log.Info("FF-A proxy enabled",
		zap.Uint64("tx", p.staging.txPA),
		zap.Uint64("rx", p.staging.rxPA),
		zap.Uint32("pages", p.conf.ffaPages()))

	return
}

func (p *Proxy) negotiate() (err error) {
	if v := p.smcccVersion(); int32(v) < ffa.SMCCCVersion1_2 {
		return fmt.Errorf("%w, SMCCC version %#x", ErrUnsupported, v)
	}

	res := p.version(ffa.Version1_0)

	if int32(res.A0) == int32(ffa.ErrNotSupported) {
		return ErrUnsupported
	}

	if uint32(res.A0) != ffa.Version1_0 {
		return fmt.Errorf("%w, version %#x", ErrIncompatible, uint32(res.A0))
	}

	res = p.idGet()

	if err = res.Err(); err != nil {
		return fmt.Errorf("%w, FFA_ID_GET %v", ErrIncompatible, err)
	}

	if id := uint16(res.A2); id != p.conf.HostID {
		return fmt.Errorf("%w, unexpected endpoint id %#x", ErrIncompatible, id)
	}

	res = p.features(ffa.FFA_FN64_RXTX_MAP)

	if err = res.Err(); err != nil {
		return fmt.Errorf("%w, FFA_FN64_RXTX_MAP %v", ErrIncompatible, err)
	}

	var minSize uint64

	switch res.A2 & 0x3 {
	case ffa.FEAT_RXTX_MIN_SZ_4K:
		minSize = 4 << 10
	case ffa.FEAT_RXTX_MIN_SZ_16K:
		minSize = 16 << 10
	case ffa.FEAT_RXTX_MIN_SZ_64K:
		minSize = 64 << 10
	default:
		return fmt.Errorf("%w, invalid minimum buffer size", ErrIncompatible)
	}

	if minSize > p.conf.PageSize {
		return fmt.Errorf("%w, minimum buffer size %#x exceeds page size", ErrIncompatible, minSize)
	}

	return
}

// Enabled reports whether FF-A support was successfully negotiated.
func (p *Proxy) Enabled() bool {
	return p.enabled.Load()
}

// Status returns a snapshot of the proxy state.
func (p *Proxy) Status() (s Status) {
	p.Lock()
	defer p.Unlock()

	s = Status{
		Enabled:     p.enabled.Load(),
		HostID:      p.conf.HostID,
		Calls:       p.stats.calls.Load(),
		Errors:      p.stats.errors.Load(),
		Rollbacks:   p.stats.rollbacks.Load(),
		Divergences: p.stats.divergences.Load(),
	}

	if p.host != nil {
		s.Mapped = true
		s.TX = p.host.txPA
		s.RX = p.host.rxPA
	}

	return
}

func (p *Proxy) pfn(pa uint64) uint64 {
	return pa / p.conf.PageSize
}

func (p *Proxy) aligned(pa uint64) bool {
	return pa%p.conf.PageSize == 0
}

// diverged reports a page ownership bookkeeping inconsistency.
func (p *Proxy) diverged(msg string, fields ...zap.Field) {
	p.stats.divergences.Add(1)
	p.log.Error(msg, append(fields, zap.Stack("stack"))...)
}
